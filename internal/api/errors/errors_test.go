package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestValidationError(t *testing.T) {
	rr := httptest.NewRecorder()
	ValidationError(rr, "bad ce expression")

	if rr.Code != 400 {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body.Error.Code != CodeValidationError || body.Error.Message != "bad ce expression" {
		t.Errorf("body = %+v", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestNamedConstructors_StatusAndCode(t *testing.T) {
	cases := []struct {
		name       string
		call       func(w http.ResponseWriter, msg string)
		wantStatus int
		wantCode   string
	}{
		{"NotFound", NotFound, 404, CodeNotFound},
		{"Unauthorized", Unauthorized, 401, CodeUnauthorized},
		{"Forbidden", Forbidden, 403, CodeForbidden},
		{"TooManyCollisions", TooManyCollisions, 507, CodeTooManyCollisions},
		{"SerializationError", SerializationError, 500, CodeSerializationError},
		{"EvaluatorError", EvaluatorError, 400, CodeEvaluatorError},
		{"LockingError", LockingError, 503, CodeLockingError},
		{"InternalError", InternalError, 500, CodeInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.call(rr, "message")
			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			body := decodeBody(t, rr)
			if body.Error.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tc.wantCode)
			}
		})
	}
}
