package ircore

import (
	"runtime"
	"strings"
	"sync"
	"time"
)

// ctcpDelim is the prefix and suffix byte for CTCP-framed text, see
// http://www.irchelp.org/protocol/ctcpspec.html.
const ctcpDelim byte = 0x01

// CTCPMessage is the decoded form of a CTCP-framed PRIVMSG/NOTICE.
type CTCPMessage struct {
	Source *Source
	// Command is the CTCP tag, e.g. PING, TIME, VERSION, ACTION.
	Command string
	// Text is the raw argument text following the command.
	Text string
	// Reply is true if this is a CTCP reply (was a NOTICE, not PRIVMSG).
	Reply bool
}

// decodeCTCP decodes an incoming CTCP payload, or returns nil if m isn't
// CTCP-framed.
func decodeCTCP(m *Message) *CTCPMessage {
	if len(m.Params) != 1 || len(m.Trailing) < 3 {
		return nil
	}

	if m.Command != PRIVMSG && m.Command != NOTICE {
		return nil
	}

	if m.Trailing[0] != ctcpDelim || m.Trailing[len(m.Trailing)-1] != ctcpDelim {
		return nil
	}

	text := m.Trailing[1 : len(m.Trailing)-1]

	s := strings.IndexByte(text, eventSpace)
	if s < 0 {
		if !isCTCPTag(text) {
			return nil
		}

		return &CTCPMessage{Source: m.Source, Command: text, Reply: m.Command == NOTICE}
	}

	if !isCTCPTag(text[:s]) {
		return nil
	}

	return &CTCPMessage{
		Source:  m.Source,
		Command: text[:s],
		Text:    text[s+1:],
		Reply:   m.Command == NOTICE,
	}
}

func isCTCPTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i := 0; i < len(tag); i++ {
		if (tag[i] < 0x41 || tag[i] > 0x5A) && (tag[i] < 0x30 || tag[i] > 0x39) {
			return false
		}
	}
	return true
}

// encodeCTCPRaw encodes cmd/text into a CTCP-framed string, including
// delimiters.
func encodeCTCPRaw(cmd, text string) string {
	if cmd == "" {
		return ""
	}

	out := string(ctcpDelim) + cmd
	if text != "" {
		out += string(eventSpace) + text
	}

	return out + string(ctcpDelim)
}

// Known CTCP tags with built-in default handlers.
const (
	CTCPPing    = "PING"
	CTCPPong    = "PONG"
	CTCPVersion = "VERSION"
	CTCPSource  = "SOURCE"
	CTCPTime    = "TIME"
	CTCPAction  = "ACTION"
	CTCPErrmsg  = "ERRMSG"
)

// CTCPHandler handles a single decoded CTCP exchange for one server.
type CTCPHandler func(server *Server, ctcp CTCPMessage)

// ctcpRegistry dispatches decoded CTCP messages to registered handlers,
// falling back to a small set of protocol-mandated replies.
type ctcpRegistry struct {
	disableDefault bool

	mu       sync.RWMutex
	handlers map[string]CTCPHandler
}

func newCTCPRegistry() *ctcpRegistry {
	r := &ctcpRegistry{handlers: map[string]CTCPHandler{}}
	r.addDefaults()
	return r
}

func (r *ctcpRegistry) call(server *Server, ctcp *CTCPMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers["*"]; ok {
		h(server, *ctcp)
	}

	h, ok := r.handlers[ctcp.Command]
	if !ok {
		if ctcp.Source != nil && IsValidNick(ctcp.Source.Name) && !ctcp.Reply {
			server.SendCTCPReply(ctcp.Source.Name, CTCPErrmsg, "that is an unknown CTCP query")
		}
		return
	}

	h(server, *ctcp)
}

// Set registers a handler for a CTCP tag ("*" matches every tag, run
// before the tag-specific handler).
func (r *ctcpRegistry) Set(cmd string, h CTCPHandler) {
	cmd = strings.ToUpper(cmd)
	if cmd != "*" && !isCTCPTag(cmd) {
		return
	}

	r.mu.Lock()
	r.handlers[cmd] = h
	r.mu.Unlock()
}

func (r *ctcpRegistry) Clear(cmd string) {
	r.mu.Lock()
	delete(r.handlers, strings.ToUpper(cmd))
	r.mu.Unlock()
}

func (r *ctcpRegistry) addDefaults() {
	if r.disableDefault {
		return
	}

	r.handlers[CTCPPing] = handleCTCPPing
	r.handlers[CTCPPong] = handleCTCPPong
	r.handlers[CTCPVersion] = handleCTCPVersion
	r.handlers[CTCPSource] = handleCTCPSource
	r.handlers[CTCPTime] = handleCTCPTime
}

func handleCTCPPing(server *Server, ctcp CTCPMessage) {
	if ctcp.Reply {
		return
	}
	server.SendCTCPReply(ctcp.Source.Name, CTCPPing, ctcp.Text)
}

func handleCTCPPong(server *Server, ctcp CTCPMessage) {
	if ctcp.Reply {
		return
	}
	server.SendCTCPReply(ctcp.Source.Name, CTCPPong, "")
}

func handleCTCPVersion(server *Server, ctcp CTCPMessage) {
	if ctcp.Reply {
		return
	}
	server.SendCTCPReplyf(ctcp.Source.Name, CTCPVersion, "ircore (%s, %s, %s)",
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func handleCTCPSource(server *Server, ctcp CTCPMessage) {
	if ctcp.Reply {
		return
	}
	server.SendCTCPReply(ctcp.Source.Name, CTCPSource, "https://github.com/ircore/ircore")
}

func handleCTCPTime(server *Server, ctcp CTCPMessage) {
	if ctcp.Reply {
		return
	}
	server.SendCTCPReply(ctcp.Source.Name, CTCPTime, time.Now().Format(time.RFC1123Z))
}
