package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"volley/internal/control"
)

const (
	BucketRuns = "runs"
	BucketIDs  = "run_ids"
)

var ErrNotFound = errors.New("run not found")

// Store keeps finished reports in a bbolt file. Run keys sort by start
// time so a reverse cursor walks newest first.
type Store struct {
	db       *bbolt.DB
	filePath string
}

// Entry is the listing view of a stored run.
type Entry struct {
	ID        string
	StartedAt time.Time
	URL       string
	Workers   int
	Total     int
	Success   int
	Rank      float64
	Latency   time.Duration // At Rank
	TimedOut  bool
}

// DefaultPath is ~/.volley/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".volley", "history.db"), nil
}

func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(BucketIDs))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func runKey(r *control.Report) []byte {
	return []byte(r.StartedAt.UTC().Format("20060102T150405.000000000Z") + "_" + r.ID)
}

// Save implements control.Sink.
func (s *Store) Save(ctx context.Context, r *control.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key := runKey(r)
		if err := tx.Bucket([]byte(BucketRuns)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketIDs)).Put([]byte(r.ID), key)
	})
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	var items []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var r control.Report
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			e := Entry{
				ID:        r.ID,
				StartedAt: r.StartedAt,
				URL:       r.Config.URL,
				Workers:   r.Summary.Total,
				Total:     r.Summary.Total,
				Success:   r.Summary.Success,
				Rank:      r.Summary.PercentileRank,
				Latency:   r.Summary.Percentile,
			}
			if r.Result != nil {
				e.Workers = len(r.Result.Outcomes) + r.Result.Shortfall()
				e.TimedOut = r.Result.TimedOut
			}
			items = append(items, e)
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*control.Report, error) {
	var r control.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(BucketIDs)).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		v := tx.Bucket([]byte(BucketRuns)).Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
