package ircore

import (
	"bufio"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

const wireDelim byte = '\n'

var wireEndline = []byte("\r\n")

// DialStatus is reported through a Server's dial-progress callback while
// connecting.
type DialStatus uint8

const (
	DialOK DialStatus = iota
	DialAddressNotFound
	DialIPNotFound
	DialRefused
	DialProxyFailure
	DialLocalHostnameError
	DialTLSInitFailure
	DialTLSHandshakeFailure
	DialMemory
	DialTimeout
	DialSocketError
)

func (s DialStatus) String() string {
	switch s {
	case DialOK:
		return "ok"
	case DialAddressNotFound:
		return "address-not-found"
	case DialIPNotFound:
		return "ip-not-found"
	case DialRefused:
		return "refused"
	case DialProxyFailure:
		return "proxy-failure"
	case DialLocalHostnameError:
		return "local-hostname-error"
	case DialTLSInitFailure:
		return "tls-init-failure"
	case DialTLSHandshakeFailure:
		return "tls-handshake-failure"
	case DialTimeout:
		return "timeout"
	case DialSocketError:
		return "socket-error"
	default:
		return "memory"
	}
}

// wireConn wraps the raw socket with buffered line framing and last
// activity bookkeeping used by the ping/lag loop.
type wireConn struct {
	sock net.Conn
	rw   *bufio.ReadWriter

	fake bool // true for "fake:" addresses: no real socket, sends discarded.

	lastWrite  time.Time
	lastActive time.Time
}

func newWireConn(sock net.Conn) *wireConn {
	c := &wireConn{sock: sock}
	c.rw = bufio.NewReadWriter(bufio.NewReader(sock), bufio.NewWriter(sock))
	return c
}

func (c *wireConn) readLine() (string, error) {
	if c.fake {
		<-make(chan struct{}) // fake connections never receive; block until closed elsewhere.
	}
	return c.rw.ReadString(wireDelim)
}

func (c *wireConn) writeLine(b []byte) error {
	if c.fake {
		return nil
	}
	if _, err := c.rw.Write(b); err != nil {
		return err
	}
	if _, err := c.rw.Write(wireEndline); err != nil {
		return err
	}
	return c.rw.Flush()
}

func (c *wireConn) Close() error {
	if c.fake || c.sock == nil {
		return nil
	}
	return c.sock.Close()
}

// resolveDialer builds the net dialer for one connection attempt,
// honoring the server's proxy setting via golang.org/x/net/proxy.
func resolveDialer(proxyURI string, timeout time.Duration) (proxy.Dialer, DialStatus, error) {
	base := &net.Dialer{Timeout: timeout}

	if proxyURI == "" {
		return base, DialOK, nil
	}

	u, err := url.Parse(proxyURI)
	if err != nil {
		return nil, DialProxyFailure, err
	}

	d, err := proxy.FromURL(u, base)
	if err != nil {
		return nil, DialProxyFailure, err
	}

	return d, DialOK, nil
}

// dialAddress connects to one address from the server's address list,
// handling the "fake:" test prefix and TLS handshake/fingerprint
// verification, and classifying the failure
func dialAddress(ctx context.Context, cfg *ServerConfig, address string) (*wireConn, DialStatus, error) {
	if strings.HasPrefix(address, "fake:") {
		return &wireConn{fake: true}, DialOK, nil
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, "6667"
		if cfg.TLS.Enabled {
			port = "6697"
		}
	}
	addr := net.JoinHostPort(host, port)

	dialer, status, err := resolveDialer(cfg.Proxy, 10*time.Second)
	if err != nil {
		return nil, status, err
	}

	var sock net.Conn
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		sock, err = ctxDialer.DialContext(ctx, "tcp", addr)
	} else {
		sock, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, classifyDialError(err), err
	}

	if cfg.TLS.Enabled {
		tlsConn, status, err := tlsHandshake(sock, cfg, host)
		if err != nil {
			_ = sock.Close()
			return nil, status, err
		}
		sock = tlsConn
	}

	return newWireConn(sock), DialOK, nil
}

func classifyDialError(err error) DialStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return DialTimeout
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return DialAddressNotFound
	case strings.Contains(msg, "connection refused"):
		return DialRefused
	case strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "no route to host"):
		return DialIPNotFound
	default:
		return DialSocketError
	}
}

// tlsHandshake performs the handshake and, if a fingerprint is
// configured, verifies the leaf certificate's digest against it
// (algorithm auto-selected by hex length: 40/64/128 -> SHA-1/256/512).
func tlsHandshake(sock net.Conn, cfg *ServerConfig, serverName string) (net.Conn, DialStatus, error) {
	tlsCfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !cfg.TLS.Verify, //nolint:gosec
	}

	if cfg.TLS.Fingerprint != "" {
		tlsCfg.InsecureSkipVerify = true
	}

	conn := tls.Client(sock, tlsCfg)
	if err := conn.HandshakeContext(context.Background()); err != nil {
		return nil, DialTLSHandshakeFailure, err
	}

	if cfg.TLS.Fingerprint != "" {
		state := conn.ConnectionState()
		if len(state.PeerCertificates) == 0 {
			return nil, DialTLSHandshakeFailure, fmt.Errorf("no peer certificate presented")
		}

		if err := verifyFingerprint(state.PeerCertificates[0].Raw, cfg.TLS.Fingerprint); err != nil {
			return nil, DialTLSHandshakeFailure, err
		}
	}

	return conn, DialOK, nil
}

func verifyFingerprint(der []byte, want string) error {
	want = strings.ToLower(strings.ReplaceAll(want, ":", ""))

	var got string
	switch len(want) {
	case 40:
		sum := sha1.Sum(der)
		got = hex.EncodeToString(sum[:])
	case 64:
		sum := sha256.Sum256(der)
		got = hex.EncodeToString(sum[:])
	case 128:
		sum := sha512.Sum512(der)
		got = hex.EncodeToString(sum[:])
	default:
		return fmt.Errorf("unrecognized fingerprint length %d", len(want))
	}

	if got != want {
		return fmt.Errorf("certificate fingerprint mismatch: got %s want %s", got, want)
	}

	return nil
}

// connectOnce resolves the current address, dials it, runs login, and
// blocks until the connection's goroutine group exits (error, quit, or
// ctx cancellation).
func (s *Server) connectOnce(ctx context.Context) (registered bool, err error) {
	addr := s.currentAddress()
	s.reportDial(addr, DialOK, nil, true)

	wc, status, err := dialAddress(ctx, s.cfg, addr)
	if err != nil {
		s.reportDial(addr, status, err, false)
		s.advanceAddressOnFailure(status)
		return false, err
	}

	s.mu.Lock()
	s.conn = wc
	s.disconnected = false
	s.isConnected = false
	s.connSince = time.Now()
	s.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)
	s.cancelFunc = nil
	gctx, cancel := context.WithCancel(gctx)
	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()
	defer cancel()

	group.Go(func() error { return s.readLoop(gctx) })
	group.Go(func() error { return s.sendLoop(gctx) })
	group.Go(func() error { return s.pingLoop(gctx) })
	group.Go(func() error { return s.timerLoop(gctx) })

	s.startWatchdog(gctx)
	s.login()

	err = group.Wait()

	s.mu.Lock()
	registered = s.isConnected
	s.isConnected = false
	s.disconnected = true
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	s.core.Metrics.setConnected(s.cfg.Name, false)

	s.resetRuntimeState()

	s.emitLifecycle("irc_server_disconnected")

	return registered, err
}

func (s *Server) reportDial(addr string, status DialStatus, err error, connecting bool) {
	if s.OnDialStatus == nil {
		return
	}
	s.OnDialStatus(s, addr, status, err, connecting)
}

// advanceAddressOnFailure rotates the address index only for failures
// implying the endpoint itself is unreachable, not for handshake-timing
// errors alone.
func (s *Server) advanceAddressOnFailure(status DialStatus) {
	switch status {
	case DialAddressNotFound, DialIPNotFound, DialRefused, DialSocketError:
		s.mu.Lock()
		s.addrIndex = (s.addrIndex + 1) % len(s.cfg.Addresses)
		s.mu.Unlock()
	}
}

func (s *Server) currentAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Addresses[s.addrIndex]
}

// login sends PASS/CAP LS/NICK/USER, the registration handshake prefix.
func (s *Server) login() {
	if s.cfg.Password != "" {
		s.writeImmediate(&Message{Command: PASS, Params: []string{s.cfg.Password}, Sensitive: true})
	}

	s.startCapNegotiation()

	s.writeImmediate(&Message{Command: NICK, Params: []string{s.nextNick()}})

	realname := s.cfg.Realname
	if realname == "" {
		realname = s.cfg.Username
	}
	s.writeImmediate(&Message{Command: USER, Params: []string{s.cfg.Username, "0", "*"}, Trailing: realname})

	s.emitLifecycle("irc_server_connecting")
}

func (s *Server) startWatchdog(ctx context.Context) {
	timeout := s.cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return
		case <-s.registered:
			return
		case <-t.C:
			s.mu.Lock()
			cancel := s.cancelFunc
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}
	}()
}

func (s *Server) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if c := s.conn; c != nil && c.fake {
			<-ctx.Done()
			return nil
		}

		_ = s.conn.sock.SetReadDeadline(time.Now().Add(300 * time.Second))

		line, err := s.conn.readLine()
		if err != nil {
			return &NetError{Op: "read", Err: err}
		}

		s.core.logRaw(s.cfg.Name, "<<", strings.TrimRight(line, "\r\n"))

		m := ParseMessage(line)
		if m == nil {
			continue
		}

		s.receive(m)
	}
}

func (s *Server) sendLoop(ctx context.Context) error {
	s.outq.send = func(item outItem) {
		s.writeWire(item)
	}

	ticker := time.NewTicker(antiFloodTick(s.cfg.AntiFlood))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.outq.drain()
		case item := <-s.sendCh:
			s.outq.enqueue(item, item.priority, !s.isConnected)
			s.outq.drain()
		}
	}
}

func antiFloodTick(d time.Duration) time.Duration {
	if d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

func (s *Server) writeWire(item outItem) {
	m := item.message

	if m.Tags != nil && !s.HasCapability("message-tags") {
		m.Tags = nil
	}

	data := m.Bytes()
	if m.Sensitive {
		s.core.logRaw(s.cfg.Name, ">>", m.Command+" ***")
	} else {
		s.core.logRaw(s.cfg.Name, ">>", strings.TrimRight(string(data), "\r\n"))
	}

	if s.conn != nil {
		_ = s.conn.writeLine(m.Bytes())
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.lastWrite = time.Now()
		if m.Command != PING && m.Command != PONG && m.Command != WHO {
			s.conn.lastActive = s.conn.lastWrite
		}
	}
	s.mu.Unlock()

	if item.redirect != nil {
		s.redirects.bind(item.redirect.OwnerCommand, item.redirect.OwnerArgs)
	}

	s.emitSignal("irc_out", m)

	if m.Command == QUIT {
		go func() {
			time.Sleep(200 * time.Millisecond)
			s.mu.Lock()
			if s.cancelFunc != nil {
				s.cancelFunc()
			}
			s.mu.Unlock()
		}()
	}
}

func (s *Server) pingLoop(ctx context.Context) error {
	interval := 90 * time.Second
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			s.mu.Lock()
			if s.conn != nil && s.conn.fake {
				s.mu.Unlock()
				continue
			}
			lastActive := s.conn.lastActive
			s.mu.Unlock()

			if time.Since(lastActive) < interval {
				continue
			}

			s.mu.Lock()
			s.lagCheckTime = time.Now()
			s.mu.Unlock()
			s.writeImmediate(&Message{Command: PING, Trailing: strconv.FormatInt(time.Now().UnixNano(), 10)})
		}
	}
}
