package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-world/agentworld/pkg/version"
)

// toolConn is the connection surface the registry, tool execution and health
// checks go through. serverClient is the production implementation; tests
// substitute scripted connections.
type toolConn interface {
	ListTools(ctx context.Context) ([]*mcpsdk.Tool, error)
	CallTool(ctx context.Context, tool string, args map[string]any) (*mcpsdk.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
	// adopt takes over a freshly connected conn's transport. In-flight
	// callers holding the receiver land on the new transport.
	adopt(fresh toolConn)
}

// serverClient is one live connection to one MCP server. The session pointer
// is swapped atomically under mu during reconnection; callers always go
// through the accessor so in-flight calls after a reconnect land on the new
// session.
type serverClient struct {
	server string

	mu      sync.RWMutex
	session *mcpsdk.ClientSession
}

// connectServer creates the transport and completes the MCP handshake.
func connectServer(ctx context.Context, cfg ServerConfig, vars map[string]string) (*serverClient, error) {
	transport, err := newTransport(cfg, vars)
	if err != nil {
		return nil, fmt.Errorf("creating transport for %q: %w", cfg.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer so a failed
		// handshake doesn't leak a child process.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("connecting to %q: %w", cfg.Name, err)
	}

	return &serverClient{server: cfg.Name, session: session}, nil
}

func (c *serverClient) currentSession() (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, fmt.Errorf("no session for server %q", c.server)
	}
	return c.session, nil
}

// takeSession detaches the session so ownership can move to another client.
func (c *serverClient) takeSession() *mcpsdk.ClientSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.session
	c.session = nil
	return session
}

// adopt moves the fresh client's session into the receiver.
func (c *serverClient) adopt(fresh toolConn) {
	if sc, ok := fresh.(*serverClient); ok {
		c.replaceSession(sc.takeSession())
	}
}

// replaceSession installs a fresh session, closing the old one.
func (c *serverClient) replaceSession(session *mcpsdk.ClientSession) {
	c.mu.Lock()
	old := c.session
	c.session = session
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (c *serverClient) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", c.server, err)
	}
	return result.Tools, nil
}

func (c *serverClient) CallTool(ctx context.Context, tool string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	return session.CallTool(opCtx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
}

func (c *serverClient) Ping(ctx context.Context) error {
	session, err := c.currentSession()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	return session.Ping(pingCtx, nil)
}

func (c *serverClient) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
