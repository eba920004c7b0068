package mcp

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// newTransport creates an MCP SDK transport for a server config. vars holds
// the world's parsed variables; for stdio servers they overlay the process
// environment and the config env (vars win).
func newTransport(cfg ServerConfig, vars map[string]string) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return newStdioTransport(cfg, vars), nil
	case TransportSSE:
		transport := &mcpsdk.SSEClientTransport{Endpoint: cfg.URL}
		if len(cfg.Headers) > 0 {
			transport.HTTPClient = headerHTTPClient(cfg.Headers)
		}
		return transport, nil
	case TransportStreamableHTTP:
		transport := &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
		if len(cfg.Headers) > 0 {
			transport.HTTPClient = headerHTTPClient(cfg.Headers)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}

func newStdioTransport(cfg ServerConfig, vars map[string]string) *mcpsdk.CommandTransport {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range vars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	return &mcpsdk.CommandTransport{Command: cmd}
}

func headerHTTPClient(headers map[string]string) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: headers,
		},
	}
}

// headerTransport wraps an http.RoundTripper to add configured headers.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
