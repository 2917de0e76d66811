package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoFunctionCall = errors.New("response carried no function call")
	ErrMissingField   = errors.New("required field missing")
)

// FieldError names the required argument a function call left out.
type FieldError struct {
	Function string
	Field    string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s.%s", ErrMissingField, e.Function, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// Decode parses the function arguments of resp into T. Providers that
// answered in prose are tolerated when the text embeds a JSON object.
func Decode[T any](resp *Response, fn *FunctionSchema) (T, error) {
	var zero T
	if resp == nil {
		return zero, ErrNoFunctionCall
	}

	raw := bytes.TrimSpace(resp.Arguments)
	if len(raw) == 0 {
		obj, ok := extractObject(resp.Text)
		if !ok {
			return zero, ErrNoFunctionCall
		}
		raw = []byte(obj)
	}

	if fn != nil && len(fn.Required) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s arguments: %w", fn.Name, err)
		}
		for _, name := range fn.Required {
			v, ok := fields[name]
			if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				return zero, &FieldError{Function: fn.Name, Field: name}
			}
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		name := "function"
		if fn != nil {
			name = fn.Name
		}
		return zero, fmt.Errorf("failed to unmarshal %s arguments: %w", name, err)
	}
	return out, nil
}
