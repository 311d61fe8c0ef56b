package acpsdk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hostbridge/acp-sdk-go/internal/protocol"
	"github.com/hostbridge/acp-sdk-go/internal/transport"
	"github.com/hostbridge/acp-sdk-go/internal/wire"
)

// Client is one connection to one agent subprocess.
//
// Lifecycle: New → Start (spawns the process and performs the protocol
// handshake) → NewSession/LoadSession as needed → Stop. Stop rejects every
// still-pending request, so no caller can hang past shutdown. Clients are
// single-use; after Stop, create a new one.
//
// A Client supports at most one active turn at a time across its sessions;
// callers must serialize turns per client.
type Client struct {
	log  *slog.Logger
	opts *Options
	conn *protocol.Conn

	mu      sync.Mutex
	started bool
	stopped bool

	agentInfo       *Implementation
	agentCaps       AgentCapabilities
	protocolVersion int
}

// New creates a client that will launch the agent described by the options.
func New(opts ...Option) *Client {
	options := applyOptions(opts)

	tr := transport.New(transport.Config{
		Executable: options.Executable,
		Args:       options.Args,
		Env:        options.Env,
		Cwd:        options.Cwd,
		Stderr:     options.Stderr,
		Logger:     options.Logger,
	})

	return newClient(options, tr)
}

// newClient wires a client over an explicit transport. Tests use this to
// substitute a mock transport.
func newClient(options *Options, tr transport.Transport) *Client {
	return &Client{
		log:  options.Logger.With("component", "client"),
		opts: options,
		conn: protocol.NewConn(options.Logger, tr),
	}
}

// Start launches the agent process and performs the initialize handshake.
//
// Fails with ErrInitializationFailed if the agent's response omits
// protocolVersion. The negotiated agent identity and capabilities are
// available afterwards via AgentInfo and AgentCapabilities, and are
// immutable for the rest of the connection.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()

	if c.started || c.stopped {
		c.mu.Unlock()

		return ErrAlreadyStarted
	}

	c.started = true
	c.mu.Unlock()

	if err := c.conn.Start(ctx); err != nil {
		return err
	}

	result, err := c.conn.Call(ctx, "initialize", map[string]any{
		"protocolVersion":    c.opts.ProtocolVersion,
		"clientInfo":         c.opts.ClientInfo,
		"clientCapabilities": c.opts.Capabilities,
	})
	if err != nil {
		c.conn.Stop()

		return fmt.Errorf("initialize: %w", err)
	}

	if result == nil || !result.Has("protocolVersion") {
		c.conn.Stop()

		return fmt.Errorf("%w: initialize response missing protocolVersion", ErrInitializationFailed)
	}

	c.mu.Lock()
	c.protocolVersion = result.Int("protocolVersion")

	if info := result.Obj("agentInfo"); info != nil {
		c.agentInfo = &Implementation{
			Name:    info.Str("name"),
			Title:   info.Str("title"),
			Version: info.Str("version"),
		}
	}

	c.agentCaps = parseAgentCapabilities(result.Obj("agentCapabilities"))
	c.mu.Unlock()

	c.log.Info("Handshake complete",
		"protocol_version", c.protocolVersion,
		"load_session", c.agentCaps.LoadSession,
	)

	return nil
}

// Stop terminates the agent process and rejects every pending request with
// ErrProcessNotRunning. Safe to call multiple times.
func (c *Client) Stop() {
	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		return
	}

	c.stopped = true
	c.mu.Unlock()

	c.conn.Stop()
	c.log.Info("Client stopped")
}

// AgentInfo returns the agent identity from the handshake, or nil if the
// agent did not send one.
func (c *Client) AgentInfo() *Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.agentInfo
}

// AgentCapabilities returns the capabilities negotiated at handshake.
func (c *Client) AgentCapabilities() AgentCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.agentCaps
}

// ProtocolVersion returns the protocol version the agent confirmed.
func (c *Client) ProtocolVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.protocolVersion
}

// NewSession creates a new conversation session. The MCP server
// descriptors are forwarded to the agent verbatim.
func (c *Client) NewSession(ctx context.Context, cwd string, servers []McpServer) (*Session, error) {
	result, err := c.conn.Call(ctx, "session/new", sessionSetupParams("", cwd, c.opts.Cwd, servers))
	if err != nil {
		return nil, fmt.Errorf("session/new: %w", err)
	}

	id := result.Str("sessionId")
	if id == "" {
		return nil, fmt.Errorf("%w: session/new response missing sessionId", ErrInvalidResponse)
	}

	sess := newSession(c, id)
	sess.applyCatalog(result)

	c.log.Info("Session created", "session_id", id)

	return sess, nil
}

// LoadSession resumes an existing session by id. Fails immediately,
// without a round trip, if the agent did not advertise load-session
// support at handshake.
func (c *Client) LoadSession(ctx context.Context, id string, cwd string, servers []McpServer) (*Session, error) {
	if !c.AgentCapabilities().LoadSession {
		return nil, fmt.Errorf("%w: agent does not support session/load", ErrMethodNotFound)
	}

	result, err := c.conn.Call(ctx, "session/load", sessionSetupParams(id, cwd, c.opts.Cwd, servers))
	if err != nil {
		return nil, fmt.Errorf("session/load: %w", err)
	}

	sess := newSession(c, id)
	sess.applyCatalog(result)

	c.log.Info("Session loaded", "session_id", id)

	return sess, nil
}

func sessionSetupParams(id, cwd, fallbackCwd string, servers []McpServer) map[string]any {
	if cwd == "" {
		cwd = fallbackCwd
	}

	if servers == nil {
		servers = []McpServer{}
	}

	params := map[string]any{
		"cwd":        cwd,
		"mcpServers": servers,
	}

	if id != "" {
		params["sessionId"] = id
	}

	return params
}

func parseAgentCapabilities(caps wire.Object) AgentCapabilities {
	if caps == nil {
		return AgentCapabilities{}
	}

	parsed := AgentCapabilities{LoadSession: caps.Bool("loadSession")}

	if pc := caps.Obj("promptCapabilities"); pc != nil {
		parsed.PromptCapabilities = &PromptCapabilities{
			Image:           pc.Bool("image"),
			Audio:           pc.Bool("audio"),
			EmbeddedContext: pc.Bool("embeddedContext"),
		}
	}

	if mc := caps.Obj("mcpCapabilities"); mc != nil {
		parsed.McpCapabilities = &McpCapabilities{
			HTTP: mc.Bool("http"),
			SSE:  mc.Bool("sse"),
		}
	}

	return parsed
}
