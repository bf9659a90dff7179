package mx

import (
	"errors"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr any // nil, *InvalidResponseError or *RemoteError
	}{
		{"success", `{"success": true, "token": "t"}`, nil},
		{"remote failure", `{"success": false, "error": "boom"}`, &RemoteError{}},
		{"missing success", `{"token": "t"}`, &InvalidResponseError{}},
		{"non-bool success", `{"success": "yes"}`, &InvalidResponseError{}},
		{"bad json", `{"success": tr`, &InvalidResponseError{}},
		{"empty", ``, &InvalidResponseError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decodeEnvelope("test_op", tt.raw)
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Fatalf("decodeEnvelope() error = %v, want nil", err)
				}
				if env.str("token") != "t" {
					t.Errorf("str(token) = %q, want t", env.str("token"))
				}
			case *RemoteError:
				var re *RemoteError
				if !errors.As(err, &re) {
					t.Fatalf("error = %v, want RemoteError", err)
				}
				if re.Message != "boom" {
					t.Errorf("Message = %q, want boom", re.Message)
				}
				_ = want
			case *InvalidResponseError:
				var ie *InvalidResponseError
				if !errors.As(err, &ie) {
					t.Fatalf("error = %v, want InvalidResponseError", err)
				}
			}
		})
	}
}

func TestDecodeEnvelopeRequiresNewCode(t *testing.T) {
	_, err := decodeEnvelope(OpLoginWithCode,
		`{"success": false, "error": "code expired", "requires_new_code": true}`)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if !re.RequiresNewCode {
		t.Error("RequiresNewCode = false, want true")
	}
}

func TestAsStringNormalizesNumbers(t *testing.T) {
	env, err := decodeEnvelope("op", `{"success": true, "id": 1234567890123}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := env.str("id"); got != "1234567890123" {
		t.Errorf("str(id) = %q, want decimal form", got)
	}
}

func TestAsInt64Coercions(t *testing.T) {
	env, err := decodeEnvelope("op", `{"success": true, "a": 7, "b": "42", "c": "x"}`)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := env.int64("a"); !ok || n != 7 {
		t.Errorf("int64(a) = %d, %v", n, ok)
	}
	if n, ok := env.int64("b"); !ok || n != 42 {
		t.Errorf("int64(b) = %d, %v", n, ok)
	}
	if _, ok := env.int64("c"); ok {
		t.Error("int64(c) accepted a non-numeric string")
	}
}
