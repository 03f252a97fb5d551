package ircore

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// StatusServer is a small read-only HTTP introspection surface over a
// Core: every route only calls accessors already safe to use from
// another goroutine while servers are running, never anything that
// mutates connection state.
type StatusServer struct {
	core *Core
	echo *echo.Echo
}

// NewStatusServer builds a StatusServer exposing /servers,
// /servers/:name/channels, and /servers/:name/snapshot as JSON.
func NewStatusServer(core *Core) *StatusServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &StatusServer{core: core, echo: e}

	e.GET("/servers", s.listServers)
	e.GET("/servers/:name/channels", s.listChannels)
	e.GET("/servers/:name/snapshot", s.snapshot)

	return s
}

// Start blocks serving HTTP on addr until it fails or is shut down.
func (s *StatusServer) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP listener.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type serverSummary struct {
	Name        string `json:"name"`
	CurrentNick string `json:"current_nick"`
	Connected   bool   `json:"connected"`
	Channels    int    `json:"channels"`
}

func (s *StatusServer) listServers(c echo.Context) error {
	out := make([]serverSummary, 0)
	for _, srv := range s.core.Servers() {
		out = append(out, serverSummary{
			Name:        srv.Name(),
			CurrentNick: srv.CurrentNick(),
			Connected:   srv.IsConnected(),
			Channels:    len(srv.Channels()),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type channelSummary struct {
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Part    bool   `json:"part"`
	Members int    `json:"members"`
}

func (s *StatusServer) listChannels(c echo.Context) error {
	srv := s.core.Server(c.Param("name"))
	if srv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "server not found")
	}

	out := make([]channelSummary, 0)
	for _, ch := range srv.Channels() {
		out = append(out, channelSummary{
			Name:    ch.Name,
			Topic:   ch.Topic,
			Part:    ch.Part,
			Members: ch.Len(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type snapshotSummary struct {
	Name        string           `json:"name"`
	CurrentNick string           `json:"current_nick"`
	Channels    []channelSummary `json:"channels"`
	Nicks       []string         `json:"nicks"`
}

func (s *StatusServer) snapshot(c echo.Context) error {
	srv := s.core.Server(c.Param("name"))
	if srv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "server not found")
	}

	out := snapshotSummary{Name: srv.Name(), CurrentNick: srv.CurrentNick()}
	for _, ch := range srv.Channels() {
		out.Channels = append(out.Channels, channelSummary{
			Name:    ch.Name,
			Topic:   ch.Topic,
			Part:    ch.Part,
			Members: ch.Len(),
		})
	}
	for entry := range srv.nicks.IterBuffered() {
		out.Nicks = append(out.Nicks, entry.Val.Name)
	}

	return c.JSON(http.StatusOK, out)
}
