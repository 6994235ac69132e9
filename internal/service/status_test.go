package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/stretchr/testify/assert"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", client.Validation("upload", "Please upload a PDF file"), "Please upload a PDF file"},
		{"wrapped api error", fmt.Errorf("select: %w", client.DataIntegrity("chat", "no content")), "no content"},
		{"timeout without message", &client.APIError{Op: "quiz", Kind: client.ErrTimeout}, timeoutText},
		{"connectivity without message", &client.APIError{Op: "chat", Kind: client.ErrConnectivity}, connectivityText},
		{"backend without message", &client.APIError{Op: "chat", Kind: client.ErrBackend, Status: 500}, "backend error"},
		{"bare deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), timeoutText},
		{"canceled", context.Canceled, canceledText},
		{"unknown", errors.New("disk full"), "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusText(tt.err))
		})
	}
}

func TestErrorLine(t *testing.T) {
	assert.Equal(t, "Error: Please upload a PDF first", ErrorLine(client.Validation("chat", "Please upload a PDF first")))
}
