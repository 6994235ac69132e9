package service

import (
	"context"
	"errors"

	"github.com/raphaelgruber/docchat/internal/client"
)

// Fallback texts for errors without a server-supplied message.
const (
	timeoutText      = "Request timed out. Please try again."
	connectivityText = "Cannot connect to backend server. Please make sure it is running."
	canceledText     = "Cancelled."
)

// StatusText turns an error into the line shown to the user.
// Returns "" for nil.
func StatusText(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Message != "":
			return apiErr.Message
		case errors.Is(apiErr, client.ErrTimeout):
			return timeoutText
		case errors.Is(apiErr, client.ErrConnectivity):
			return connectivityText
		}
		return apiErr.Kind.Error()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutText
	case errors.Is(err, context.Canceled):
		return canceledText
	}
	return err.Error()
}

// ErrorLine formats err as an "Error: ..." status line.
func ErrorLine(err error) string {
	return "Error: " + StatusText(err)
}
