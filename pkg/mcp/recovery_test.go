package mcp

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection closed", errors.New("rpc: connection closed"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"socket hang up", errors.New("socket hang up"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"transport error", errors.New("transport error: stream closed"), true},
		{"stream destroyed", errors.New("Cannot call write after a stream was destroyed"), true},
		{"econnreset literal", errors.New("ECONNRESET"), true},
		{"econnrefused literal", errors.New("dial: ECONNREFUSED"), true},
		{"network connection lost", errors.New("the network connection lost"), true},
		{"read epipe", errors.New("read EPIPE"), true},
		{"case insensitive", errors.New("CONNECTION CLOSED"), true},
		{"wrapped keyword", fmt.Errorf("calling tool: %w", errors.New("broken pipe")), true},
		{"wrapped errno", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"econnrefused errno", syscall.ECONNREFUSED, true},
		{"tool failure", errors.New("tool reported invalid input"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"auth failure", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}
