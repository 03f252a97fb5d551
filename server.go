package ircore

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// LifecycleHandler observes connection lifecycle transitions
// (*INITIALIZED, *CONNECTED, disconnects) on the event stream.
type LifecycleHandler func(server *Server, name string)

// SignalHandler observes every inbound or outbound wire message after
// dispatch, for host applications building a display layer on top of
// this package (the event stream).
type SignalHandler func(server *Server, direction string, m *Message)

// DialStatusHandler is called with the outcome of each address dial
// attempt.
type DialStatusHandler func(server *Server, address string, status DialStatus, err error, connecting bool)

// Server is one IRC network connection and all state scoped to it: its
// configuration, wire connection, channel/nick state, and outbound
// queues. A Core owns a set of Servers; nothing here is process-global.
type Server struct {
	core *Core
	cfg  *ServerConfig
	log  *log.Logger

	// Public signal hooks. A host application sets these once before
	// calling Connect; they are read without synchronization afterward,
	// matching the teacher's callback-field convention.
	OnLifecycle   LifecycleHandler
	OnSignal      SignalHandler
	OnDialStatus  DialStatusHandler
	BatchModifier BatchModifier

	mu sync.Mutex

	conn         *wireConn
	addrIndex    int
	isConnected  bool
	disconnected bool
	connSince    time.Time
	cancelFunc   context.CancelFunc
	registered   chan struct{}
	lagCheckTime time.Time
	lastPong     time.Time

	// currentNick/nickIdx track the nickname registration handshake's
	// fallback through cfg.Nicks. altBase/altDigit track the digit-suffix
	// phase once the underscore padding on the last configured nick has
	// reached the 9-character limit.
	currentNick string
	nickIdx     int
	altBase     string
	altDigit    int

	isupport  map[string]string
	caseMap   CaseMapping
	chanTypes string
	prefixMap PrefixMap

	caps *capEngine
	sasl *saslSession

	channels *channelRegistry
	nicks    cmap.ConcurrentMap[string, *Nick]

	outq      *outQueue
	sendCh    chan outItem
	batches   *batchRegistry
	redirects *redirectRegistry
	ctcp      *ctcpRegistry
	ignores   *ignoreList
	notify    *notifyList

	autojoined bool
}

func newServer(core *Core, cfg *ServerConfig, logger *log.Logger) *Server {
	s := &Server{
		core:       core,
		cfg:        cfg,
		log:        logger,
		registered: make(chan struct{}),
		isupport:   make(map[string]string),
		caseMap:    CaseMappingRFC1459,
		chanTypes:  cfg.DefaultChanTypes,
		prefixMap:  DefaultPrefixMap,
		caps:       newCapEngine(),
		nicks:      cmap.New[*Nick](),
		batches:    newBatchRegistry(),
		redirects:  newRedirectRegistry(),
		ctcp:       newCTCPRegistry(),
		ignores:    newIgnoreList(),
		notify:     newNotifyList(cfg.Notify),
		sendCh:     make(chan outItem, 64),
	}
	s.channels = newChannelRegistry(s.caseMap)
	s.outq = newOutQueue(cfg.AntiFlood, nil)

	return s
}

// --- accessors used throughout the dispatcher / modes / split code ---

func (s *Server) casemap() CaseMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caseMap
}

// ChanTypes returns the ISUPPORT CHANTYPES token, or the server's
// configured default before 005 is received.
func (s *Server) ChanTypes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chanTypes == "" {
		return defaultChanTypes
	}
	return s.chanTypes
}

// PrefixMap returns the ISUPPORT PREFIX mapping currently in effect.
func (s *Server) PrefixMap() PrefixMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefixMap
}

// ISupport looks up one RPL_ISUPPORT token.
func (s *Server) ISupport(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.isupport[key]
	return v, ok
}

func (s *Server) setISupport(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isupport[key] = value

	switch key {
	case "CASEMAPPING":
		s.caseMap = ParseCaseMapping(value)
		s.channels.cm = s.caseMap
	case "CHANTYPES":
		s.chanTypes = value
	case "PREFIX":
		if pm := ParsePrefixMap(value); pm.Valid() {
			s.prefixMap = pm
		}
	}
}

// HasCapability reports whether name was successfully ACKed during CAP
// negotiation.
func (s *Server) HasCapability(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps.isEnabled(name)
}

// Name returns the server's configured name.
func (s *Server) Name() string { return s.cfg.Name }

// Config returns the resolved configuration this server was built from.
func (s *Server) Config() *ServerConfig { return s.cfg }

// CurrentNick returns the nickname currently registered with the server.
func (s *Server) CurrentNick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentNick
}

// IsConnected reports whether the connection has completed registration
// (RPL_WELCOME observed).
func (s *Server) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnected
}

func (s *Server) lookupChannel(name string) *Channel { return s.channels.get(name) }

// Channels returns every tracked channel (joined or parted-but-retained).
func (s *Server) Channels() []*Channel { return s.channels.all() }

func (s *Server) lookupNick(name string) *Nick {
	n, _ := s.nicks.Get(s.casemap().Fold(name))
	return n
}

func (s *Server) trackNick(n *Nick) {
	s.nicks.Set(s.casemap().Fold(n.Name), n)
}

func (s *Server) nextNick() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	nicks := s.cfg.Nicks
	if len(nicks) == 0 {
		nicks = []string{s.cfg.Username}
	}
	if s.nickIdx >= len(nicks) {
		s.nickIdx = len(nicks) - 1
	}

	s.currentNick = nicks[s.nickIdx]
	return s.currentNick
}

// rotateNick advances to the next configured alternate. Once the list is
// exhausted it pads the last-tried nick with underscores up to 9
// characters, then falls back to appending digits 1..99 to the base
// nick's last positions. ok is false once every alternate is exhausted,
// at which point the caller should give up and disconnect.
func (s *Server) rotateNick() (nick string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nickIdx+1 < len(s.cfg.Nicks) {
		s.nickIdx++
		s.currentNick = s.cfg.Nicks[s.nickIdx]
		s.altBase = ""
		s.altDigit = 0
		return s.currentNick, true
	}

	if s.altBase == "" {
		s.altBase = s.currentNick
	}

	if len(s.currentNick) < 9 {
		s.currentNick += "_"
		return s.currentNick, true
	}

	s.altDigit++
	if s.altDigit > 99 {
		return "", false
	}

	suffix := strconv.Itoa(s.altDigit)
	base := s.altBase
	if len(base)+len(suffix) > 9 {
		base = base[:9-len(suffix)]
	}
	s.currentNick = base + suffix

	return s.currentNick, true
}

func (s *Server) resetRuntimeState() {
	s.mu.Lock()
	s.caps = newCapEngine()
	s.sasl = nil
	s.nickIdx = 0
	s.altBase = ""
	s.altDigit = 0
	s.isupport = make(map[string]string)
	s.caseMap = CaseMappingRFC1459
	s.prefixMap = DefaultPrefixMap

	select {
	case <-s.registered:
		s.registered = make(chan struct{})
	default:
	}
	s.mu.Unlock()

	if !s.cfg.Autorejoin {
		s.channels.clear()
	}
}

func (s *Server) beginSASL() {
	sasl := s.cfg.SASL
	session := newSASLSession(sasl.Mechanism, sasl.Username, sasl.Password, sasl.AuthZID, sasl.KeyFile)

	s.mu.Lock()
	s.sasl = session
	s.mu.Unlock()

	s.writeImmediate(&Message{Command: AUTHENTICATE, Params: []string{string(sasl.Mechanism)}})
}

// --- lifecycle / signal emission -------------------------------------

func (s *Server) emitLifecycle(name string) {
	if s.OnLifecycle != nil {
		s.OnLifecycle(s, name)
	}
}

func (s *Server) emitSignal(direction string, m *Message) {
	if direction == "irc_out" {
		s.core.Metrics.observeOut(s.cfg.Name, m.Command)
	} else {
		s.core.Metrics.observeIn(s.cfg.Name, m.Command)
	}

	if s.OnSignal != nil {
		s.OnSignal(s, direction, m)
	}
}

// --- outbound API -------------------------------------------------

// writeImmediate bypasses anti-flood pacing entirely: used for the
// registration handshake and protocol-mandated replies (PONG, CAP END).
func (s *Server) writeImmediate(m *Message) {
	select {
	case s.sendCh <- outItem{message: m, priority: PriorityImmediate}:
	default:
		go func() { s.sendCh <- outItem{message: m, priority: PriorityImmediate} }()
	}
}

// Send queues m at the given priority, subject to anti-flood pacing.
func (s *Server) Send(priority Priority, m *Message) error {
	if !s.IsConnected() && priority != PriorityImmediate {
		return ErrNotConnected
	}

	select {
	case s.sendCh <- outItem{message: m, priority: priority}:
		return nil
	case <-time.After(5 * time.Second):
		return &TimedOutError{Op: "send"}
	}
}

// SendRedirected queues m like Send, additionally arming rd to capture
// the command's multi-line reply.
func (s *Server) SendRedirected(priority Priority, m *Message, rd *Redirect) error {
	s.redirects.add(rd)

	select {
	case s.sendCh <- outItem{message: m, priority: priority, redirect: rd}:
		return nil
	case <-time.After(5 * time.Second):
		return &TimedOutError{Op: "send"}
	}
}

// SendCTCPReply sends a CTCP reply as a NOTICE to target: replies are
// always NOTICE, queries are always PRIVMSG.
func (s *Server) SendCTCPReply(target, cmd, text string) {
	_ = s.Send(PriorityHigh, &Message{Command: NOTICE, Params: []string{target}, Trailing: encodeCTCPRaw(cmd, text)})
}

// SendCTCPReplyf is SendCTCPReply with fmt.Sprintf-style formatting.
func (s *Server) SendCTCPReplyf(target, cmd, format string, args ...interface{}) {
	s.SendCTCPReply(target, cmd, fmt.Sprintf(format, args...))
}

// --- receive pipeline -------------------------------------------------

// receive runs one parsed inbound line through batch accumulation, the
// redirect filter, and the protocol dispatcher, in that order, so
// redirects are consulted before the dispatcher.
func (s *Server) receive(m *Message) {
	applyMessageAccountTag(s, m)

	if m.Command == BATCH && s.handleBatchCommand(m) {
		s.processBatches()
		return
	}

	if ref, ok := m.Tags.Get("batch"); ok && ref != "" {
		if s.batches.append(ref, m) {
			return
		}
	}

	if s.redirects.feed(m) {
		s.emitSignal("irc_in", m)
		return
	}

	s.dispatch(m)
	s.processBatches()
}

// dispatch runs m through the protocol table, then the signal stream.
func (s *Server) dispatch(m *Message) {
	handleProtocol(s, m)
	s.emitSignal("irc_in", m)
}

// handleBatchCommand processes an inbound "BATCH +ref type ..." or
// "BATCH -ref" line, returning true once handled.
func (s *Server) handleBatchCommand(m *Message) bool {
	if len(m.Params) == 0 {
		return false
	}

	token := m.Params[0]
	if len(token) < 2 {
		return false
	}

	ref := token[1:]

	switch token[0] {
	case '+':
		var typ string
		var params []string
		if len(m.Params) > 1 {
			typ = m.Params[1]
			params = m.Params[2:]
		}

		parentRef, _ := m.Tags.Get("batch")
		s.batches.open(ref, parentRef, typ, params, m.Tags.Clone())
		s.core.Metrics.setBatchesActive(s.cfg.Name, len(s.batches.order))
		return true
	case '-':
		s.batches.close(ref)
		return true
	default:
		return false
	}
}

// --- connection-facing entry points -----------------------------------

// Connect dials and registers against the configured address list,
// retrying with exponential backoff per cfg.ReconnectDelay/Growth/Max
// until ctx is cancelled or autoreconnect is disabled.
func (s *Server) Connect(ctx context.Context) {
	go s.connectLoop(ctx)
}

func (s *Server) connectLoop(ctx context.Context) {
	delay := s.cfg.ReconnectDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}

	for {
		registered, err := s.connectOnce(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err == nil || !s.cfg.Autoreconnect {
			return
		}

		if registered {
			delay = s.cfg.ReconnectDelay
			if delay <= 0 {
				delay = 10 * time.Second
			}
		}

		s.core.Metrics.observeReconnect(s.cfg.Name)
		s.emitLifecycle("irc_server_reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if s.cfg.ReconnectGrowth > 0 {
			delay = time.Duration(float64(delay) * s.cfg.ReconnectGrowth)
			if s.cfg.ReconnectMax > 0 && delay > s.cfg.ReconnectMax {
				delay = s.cfg.ReconnectMax
			}
		}
	}
}

// Close sends QUIT with reason (if connected) and tears the connection
// down, without scheduling a reconnect.
func (s *Server) Close(ctx context.Context, reason string) {
	s.mu.Lock()
	cancel := s.cancelFunc
	connected := s.isConnected
	s.mu.Unlock()

	if connected {
		if reason == "" {
			reason = s.cfg.MsgQuit
		}
		s.writeImmediate(&Message{Command: QUIT, Trailing: reason})
		time.Sleep(100 * time.Millisecond)
	}

	if cancel != nil {
		cancel()
	}
}

// onRegistered fires once on RPL_WELCOME: flips IsConnected, runs the
// configured post-connect command, and autojoins channels.
func (s *Server) onRegistered() {
	s.mu.Lock()
	already := s.isConnected
	s.isConnected = true
	s.mu.Unlock()

	if already {
		return
	}

	close(s.registered)
	s.core.Metrics.setConnected(s.cfg.Name, true)
	s.emitLifecycle(CONNECTED)

	if s.cfg.Usermode != "" {
		s.writeImmediate(&Message{Command: MODE, Params: []string{s.CurrentNick(), s.cfg.Usermode}})
	}

	if s.cfg.Command != "" {
		delay := s.cfg.CommandDelay
		cmdline := s.cfg.Command
		go func() {
			time.Sleep(delay)
			if m := ParseMessage(cmdline); m != nil {
				s.writeImmediate(m)
			}
		}()
	}

	if len(s.cfg.Autojoin) > 0 {
		delay := s.cfg.AutojoinDelay
		go func() {
			time.Sleep(delay)
			s.writeImmediate(&Message{Command: JOIN, Params: []string{strings.Join(s.cfg.Autojoin, ",")}})
			s.mu.Lock()
			s.autojoined = true
			s.mu.Unlock()
		}()
	}
}
