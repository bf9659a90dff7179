package mx

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// envelope is a decoded runtime response with the success flag already
// checked. Field accessors are tolerant: the runtime serializes ids
// sometimes as numbers and sometimes as strings.
type envelope map[string]any

// decodeEnvelope parses a raw response string. An absent or non-boolean
// "success" field is a decode failure; success=false becomes a RemoteError
// with the remote diagnostic preserved.
func decodeEnvelope(op, raw string) (envelope, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var env map[string]any
	if err := dec.Decode(&env); err != nil {
		return nil, &InvalidResponseError{Op: op, Err: err}
	}

	okVal, present := env["success"]
	ok, isBool := okVal.(bool)
	if !present || !isBool {
		return nil, &InvalidResponseError{Op: op, Err: errors.New("no success flag")}
	}
	if !ok {
		msg, _ := env["error"].(string)
		return nil, &RemoteError{
			Op:              op,
			Message:         msg,
			RequiresNewCode: asBool(env["requires_new_code"]),
		}
	}
	return envelope(env), nil
}

func (e envelope) str(key string) string {
	return asString(e[key])
}

func (e envelope) int64(key string) (int64, bool) {
	return asInt64(e[key])
}

func (e envelope) bool(key string) (bool, bool) {
	v, present := e[key]
	b, isBool := v.(bool)
	return b, present && isBool
}

func (e envelope) object(key string) (map[string]any, bool) {
	m, ok := e[key].(map[string]any)
	return m, ok
}

func (e envelope) list(key string) []any {
	l, _ := e[key].([]any)
	return l
}

// asString normalizes a wire value to a string. Numbers become their
// decimal form; this is how heterogeneous message ids are unified.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
}

// asInt64 coerces a wire value to an integer. Digit-only strings are
// accepted; anything else reports false.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			if f, ferr := t.Float64(); ferr == nil {
				return int64(f), true
			}
			return 0, false
		}
		return n, true
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
