package mcp

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

const (
	implementationName    = "recall"
	implementationVersion = "0.1.0"

	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig describes how to reach one MCP server
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   []string          `yaml:"command"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// Validate checks the fields required by the transport
func (s *ServerConfig) Validate() error {
	if s.Name == "" {
		return goerr.New("MCP server name is empty")
	}

	switch s.Transport {
	case TransportStdio:
		if len(s.Command) == 0 {
			return goerr.New("command is required for stdio transport", goerr.V("server", s.Name))
		}
	case TransportHTTP:
		if s.URL == "" {
			return goerr.New("url is required for http transport", goerr.V("server", s.Name))
		}
	default:
		return goerr.New("unsupported transport",
			goerr.V("server", s.Name),
			goerr.V("transport", s.Transport),
			goerr.V("supported", []string{TransportStdio, TransportHTTP}))
	}
	return nil
}

// Config is the YAML file given by --mcp-config
//
//	servers:
//	  - name: notes
//	    transport: stdio
//	    command: ["recall", "serve", "--memory-file", "notes.json"]
//	  - name: team
//	    transport: http
//	    url: https://mcp.example.com/
//	    headers:
//	      Authorization: Bearer xxx
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadConfig reads and validates an MCP configuration file. Server names must
// be unique.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP config file", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP config file", goerr.V("path", path))
	}

	seen := make(map[string]struct{}, len(cfg.Servers))
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		if err := s.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid MCP server", goerr.V("path", path), goerr.V("position", i))
		}
		if _, ok := seen[s.Name]; ok {
			return nil, goerr.New("duplicated MCP server name", goerr.V("path", path), goerr.V("name", s.Name))
		}
		seen[s.Name] = struct{}{}
	}

	return &cfg, nil
}

// Client holds sessions to MCP servers and the tools each one offers
type Client struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	conn  *mcp.ClientSession
	tools []*mcp.Tool
}

func NewClient() *Client {
	return &Client{
		sessions: make(map[string]*session),
	}
}

// Connect opens a session to the server and lists its tools
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	_, exists := c.sessions[cfg.Name]
	c.mu.RUnlock()
	if exists {
		return goerr.New("server already connected", goerr.V("server", cfg.Name))
	}

	var transport mcp.Transport
	switch cfg.Transport {
	case TransportStdio:
		transport = newCommandTransport(cfg)
	case TransportHTTP:
		transport = newStreamableTransport(cfg)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    implementationName,
		Version: implementationVersion,
	}, nil)

	conn, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	listed, err := conn.ListTools(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return goerr.Wrap(err, "failed to list tools", goerr.V("server", cfg.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[cfg.Name] = &session{conn: conn, tools: listed.Tools}
	return nil
}

// newCommandTransport starts the server as a child process. Env is added on
// top of the current environment.
func newCommandTransport(cfg ServerConfig) mcp.Transport {
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	if len(cfg.Env) > 0 {
		keys := make([]string, 0, len(cfg.Env))
		for k := range cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
		}
	}
	return &mcp.CommandTransport{Command: cmd}
}

func newStreamableTransport(cfg ServerConfig) mcp.Transport {
	transport := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	if len(cfg.Headers) > 0 {
		transport.HTTPClient = &http.Client{
			Transport: &headerRoundTripper{headers: cfg.Headers, base: http.DefaultTransport},
		}
	}
	return transport
}

// headerRoundTripper adds fixed headers such as Authorization to every request
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}

// Tools returns the tools offered by a connected server
func (c *Client) Tools(serverName string) ([]*mcp.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[serverName]
	if !ok {
		return nil, goerr.New("server not found", goerr.V("server", serverName))
	}
	return s.tools, nil
}

// Servers returns the names of connected servers in lexical order
func (c *Client) Servers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	s, ok := c.sessions[serverName]
	c.mu.RUnlock()
	if !ok {
		return nil, goerr.New("server not found", goerr.V("server", serverName))
	}

	result, err := s.conn.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool",
			goerr.V("server", serverName),
			goerr.V("tool", toolName))
	}
	return result, nil
}

// Close ends every session. The client can be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for name, s := range c.sessions {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, goerr.Wrap(err, "failed to close session", goerr.V("server", name)))
		}
	}
	c.sessions = make(map[string]*session)
	return errors.Join(errs...)
}
