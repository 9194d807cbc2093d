package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrEmptyResponse      = errors.New("empty response")
	ErrUnexpectedResponse = errors.New("unexpected response shape")
)

// NormalizeToList accepts a bare JSON array or an object wrapping one under "data".
func NormalizeToList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	case '{':
		data, ok, err := unwrapData(trimmed)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: object without data field", ErrUnexpectedResponse)
		}
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '{' {
			return nil, fmt.Errorf("%w: nested data is not a list", ErrUnexpectedResponse)
		}
		return NormalizeToList[T](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedResponse, trimmed[0])
	}
}

// NormalizeToOne accepts an entity, an object wrapping it under "data", or a list whose first
// element is the entity.
func NormalizeToOne[T any](raw json.RawMessage) (T, error) {
	var zero T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, ErrEmptyResponse
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return zero, fmt.Errorf("decode list: %w", err)
		}
		if len(items) == 0 {
			return zero, ErrEmptyResponse
		}
		return NormalizeToOne[T](items[0])
	case '{':
		data, ok, err := unwrapData(trimmed)
		if err != nil {
			return zero, err
		}
		if ok {
			return NormalizeToOne[T](data)
		}
		var item T
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return zero, fmt.Errorf("decode entity: %w", err)
		}
		return item, nil
	default:
		return zero, fmt.Errorf("%w: %q", ErrUnexpectedResponse, trimmed[0])
	}
}

func unwrapData(object []byte) (json.RawMessage, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(object, &fields); err != nil {
		return nil, false, fmt.Errorf("decode object: %w", err)
	}
	data, ok := fields["data"]
	if !ok || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, false, nil
	}
	return data, true, nil
}

// FlexibleID decodes ids sent either as JSON strings or numbers.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string {
	return string(id)
}
