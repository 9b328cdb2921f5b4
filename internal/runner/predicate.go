package runner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// Predicate decides whether a received response counts as a success. The
// string is the failure reason when it does not.
type Predicate func(status int, body []byte) (bool, string)

// DefaultPredicate accepts a 2xx status with a non-blank body.
func DefaultPredicate(status int, body []byte) (bool, string) {
	if status < 200 || status >= 300 {
		return false, fmt.Sprintf("unexpected status %d", status)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, "empty response body"
	}
	return true, ""
}

// JMESPathPredicate extends DefaultPredicate: the body must be JSON and expr
// must evaluate to a truthy value against it.
func JMESPathPredicate(expr string) (Predicate, error) {
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: expect expression %q: %v", ErrInvalidConfig, expr, err)
	}

	return func(status int, body []byte) (bool, string) {
		if ok, reason := DefaultPredicate(status, body); !ok {
			return false, reason
		}
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return false, "response is not valid JSON"
		}
		v, err := compiled.Search(doc)
		if err != nil {
			return false, fmt.Sprintf("expect %q: %v", expr, err)
		}
		if !truthy(v) {
			return false, fmt.Sprintf("expect %q not satisfied", expr)
		}
		return true, ""
	}, nil
}

// truthy follows JMESPath truthiness: false, null and empty strings,
// arrays and objects are false. Numbers are always true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
