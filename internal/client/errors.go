package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Sentinel errors for backend operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation indicates bad input, detected locally or rejected with HTTP 400.
	ErrValidation = errors.New("validation error")

	// ErrTimeout indicates the client-side deadline fired or the gateway timed out (504).
	ErrTimeout = errors.New("timeout")

	// ErrConnectivity indicates the backend could not be reached (refused, reset, 503).
	ErrConnectivity = errors.New("backend unavailable")

	// ErrBackend indicates the backend was reached and answered with a failure.
	ErrBackend = errors.New("backend error")

	// ErrDataIntegrity indicates a success response without the fields it must carry.
	ErrDataIntegrity = errors.New("incomplete response")
)

// APIError describes a failed backend call.
type APIError struct {
	Op      string // operation, e.g. "upload"
	Kind    error  // one of the sentinel errors above
	Status  int    // HTTP status, 0 for transport errors
	Message string // server-supplied or synthesized message
	Err     error  // underlying transport error, if any
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap exposes both the sentinel kind and the transport error.
func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Validation builds a local validation error; no request is made.
func Validation(op, msg string) error {
	return &APIError{Op: op, Kind: ErrValidation, Message: msg}
}

// DataIntegrity builds an error for a success response missing required data.
func DataIntegrity(op, msg string) error {
	return &APIError{Op: op, Kind: ErrDataIntegrity, Message: msg}
}

// errorBody is the failure payload; FastAPI uses "detail", the web routes "error".
type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

// statusError maps a non-2xx response onto the taxonomy.
func statusError(op string, status int, body []byte) error {
	msg := parseErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := ErrBackend
	switch status {
	case http.StatusBadRequest:
		kind = ErrValidation
	case http.StatusServiceUnavailable:
		kind = ErrConnectivity
	case http.StatusGatewayTimeout:
		kind = ErrTimeout
	}
	return &APIError{Op: op, Kind: kind, Status: status, Message: msg}
}

func parseErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(truncate(string(body), maxBodyLogLen))
	}
	if eb.Error != "" {
		return eb.Error
	}
	switch d := eb.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		// FastAPI validation errors arrive as a list of objects
		raw, _ := json.Marshal(d)
		return truncate(string(raw), maxBodyLogLen)
	}
}

// transportError maps a failed round trip onto the taxonomy.
func transportError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Op: op, Kind: ErrTimeout, Message: "the backend did not respond in time", Err: err}
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case isConnectivity(err):
		return &APIError{Op: op, Kind: ErrConnectivity, Message: "cannot connect to the backend server", Err: err}
	}
	return fmt.Errorf("%s: execute request: %w", op, err)
}

func isConnectivity(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
