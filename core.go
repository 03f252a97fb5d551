package ircore

import (
	"context"
	"io"
	"log"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// SupportedCapabilities is the set of IRCv3 capabilities this core can
// negotiate. It is package-level state shared by every Core (the server
// list and raw-log sink live on each Core); mutation is not expected
// once a Core starts running servers.
var SupportedCapabilities = []string{
	"account-notify", "account-tag", "away-notify", "batch", "cap-notify",
	"chghost", "echo-message", "extended-join", "invite-notify",
	"message-tags", "multi-prefix", "server-time", "setname",
	"userhost-in-names", "sasl", "draft/multiline", "draft/chathistory",
}

// Core is the explicit, non-global owner of every Server this process
// manages, replacing the "global mutable registry" pattern: apart from
// the SupportedCapabilities catalogue, nothing in this package keeps
// process-wide singleton state.
type Core struct {
	// RawLog receives every inbound/outbound wire line across every
	// Server, prefixed with the server name, when non-nil.
	RawLog io.Writer

	Metrics *Metrics

	servers cmap.ConcurrentMap[string, *Server]

	mu sync.Mutex
}

// NewCore returns an empty Core ready to register servers.
func NewCore() *Core {
	return &Core{
		servers: cmap.New[*Server](),
		Metrics: NewMetrics(),
	}
}

// AddServer constructs and registers a Server from cfg, without
// connecting it.
func (c *Core) AddServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "config", Reason: "must not be nil"}
	}
	if _, exists := c.servers.Get(cfg.Name); exists {
		return nil, &ConfigError{Field: "name", Reason: "server already registered"}
	}

	logger := log.New(cfg.Debug, "", log.Ltime|log.Lshortfile)
	srv := newServer(c, cfg, logger)

	c.servers.Set(cfg.Name, srv)
	return srv, nil
}

// Server looks up a registered server by name.
func (c *Core) Server(name string) *Server {
	s, _ := c.servers.Get(name)
	return s
}

// Servers returns every registered server.
func (c *Core) Servers() []*Server {
	var out []*Server
	for entry := range c.servers.IterBuffered() {
		out = append(out, entry.Val)
	}
	return out
}

// RemoveServer disconnects (if connected) and forgets a server.
func (c *Core) RemoveServer(ctx context.Context, name string) {
	if srv, ok := c.servers.Get(name); ok {
		srv.Close(ctx, "removed")
		c.servers.Remove(name)
	}
}

// Run connects every autoconnect-eligible server and blocks until ctx is
// cancelled, then disconnects all of them cleanly.
func (c *Core) Run(ctx context.Context) error {
	for _, srv := range c.Servers() {
		if srv.cfg.Autoconnect {
			srv.Connect(ctx)
		}
	}

	<-ctx.Done()

	for _, srv := range c.Servers() {
		srv.Close(context.Background(), "shutting down")
	}

	return ctx.Err()
}

func (c *Core) logRaw(server, direction, line string) {
	if c.RawLog == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.RawLog, server+" "+direction+" "+line+"\n")
}
