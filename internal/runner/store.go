package runner

import "sync"

// Store holds one slot per task. Workers record into their own slot; once
// sealed, late records are discarded so a returned snapshot never changes.
type Store struct {
	mu     sync.Mutex
	slots  []Outcome
	filled []bool
	count  int
	sealed bool
}

func NewStore(n int) *Store {
	return &Store{
		slots:  make([]Outcome, n),
		filled: make([]bool, n),
	}
}

// Record stores o in slot i. It returns false if the slot is taken, out of
// range, or the store is sealed.
func (s *Store) Record(i int, o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed || i < 0 || i >= len(s.slots) || s.filled[i] {
		return false
	}
	s.slots[i] = o
	s.filled[i] = true
	s.count++
	return true
}

func (s *Store) Filled(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return i >= 0 && i < len(s.filled) && s.filled[i]
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Seal stops further recording and returns the recorded outcomes in task order.
func (s *Store) Seal() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
	out := make([]Outcome, 0, s.count)
	for i, ok := range s.filled {
		if ok {
			out = append(out, s.slots[i])
		}
	}
	return out
}
