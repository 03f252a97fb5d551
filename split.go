package ircore

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

const maxIRCLine = 512 - len("\r\n")

// splitFunc breaks one outbound Message into multiple when its wire
// length would exceed the server's line budget.
type splitFunc func(m *Message, maxLen int) []*Message

var splitFuncs = map[string]splitFunc{
	PRIVMSG: splitTextCommand,
	NOTICE:  splitTextCommand,
	TAGMSG:  splitNoop,
	JOIN:    splitJOIN,
	NAMES:   splitCSVTargets,
	WHO:     splitCSVTargets,
	WHOIS:   splitCSVTargets,
	WHOWAS:  splitCSVTargets,
	MONITOR: splitCSVTargets,
	ISON:    splitCSVTargets,
}

func splitNoop(m *Message, maxLen int) []*Message { return []*Message{m} }

// maxPrefixLen estimates the server-appended ":nick!user@host " prefix
// length added to every line this client sends, using NICKLEN/USERLEN/
// HOSTLEN from ISUPPORT where known.
func maxPrefixLen(server *Server) int {
	nicklen := isupportInt(server, "NICKLEN", 10)
	userlen := isupportInt(server, "USERLEN", 18)
	hostlen := isupportInt(server, "HOSTLEN", 63)

	return 1 + nicklen + 1 + userlen + 1 + hostlen + 1
}

func isupportInt(server *Server, key string, def int) int {
	v, ok := server.ISupport(key)
	if !ok {
		return def
	}

	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return def
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return def
	}
	return n
}

// splitTextCommand splits the trailing text of a PRIVMSG/NOTICE on word
// or UTF-8 rune boundaries so that no resulting line exceeds maxLen.
func splitTextCommand(m *Message, maxLen int) []*Message {
	base := m.Clone()
	base.Trailing = ""

	maxTextLen := maxLen - base.Len() - len(" :")
	if maxTextLen <= 0 {
		return []*Message{m}
	}

	b := []byte(m.Trailing)
	var out []*Message

	for len(b) > maxTextLen {
		// Only treat a whitespace boundary as usable within the last 30%
		// of the remaining budget; an early space with nothing later
		// would otherwise chop off a needlessly short fragment.
		searchFrom := maxTextLen - int(float64(maxTextLen)*0.3)
		idx := -1
		if rel := bytes.LastIndexByte(b[searchFrom:maxTextLen], ' '); rel >= 0 && searchFrom+rel > 0 {
			idx = searchFrom + rel + 1
		}
		if idx < 0 {
			// Back up to the first byte of the rune that straddles the
			// budget, so no code point is cut.
			idx = maxTextLen
			for idx > 0 && !utf8.RuneStart(b[idx]) {
				idx--
			}
			if idx <= 0 {
				idx = maxTextLen
			}
		}

		piece := base.Clone()
		piece.Trailing = string(b[:idx])
		out = append(out, piece)
		b = b[idx:]
	}

	last := base.Clone()
	last.Trailing = string(b)
	out = append(out, last)

	return out
}

// splitJOIN keeps channel/key pairs aligned: JOIN #a,#b,#c k1,,k3 must
// not be split in a way that misaligns the comma-separated channel and
// key lists, so it is split whole-pair-at-a-time rather than by raw
// wire length.
func splitJOIN(m *Message, maxLen int) []*Message {
	if len(m.Params) == 0 {
		return []*Message{m}
	}

	channels := strings.Split(m.Params[0], ",")
	var keys []string
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	base := m.Clone()
	base.Params = nil

	var out []*Message
	var curChans, curKeys []string

	flush := func() {
		if len(curChans) == 0 {
			return
		}
		piece := base.Clone()
		params := []string{strings.Join(curChans, ",")}
		if len(curKeys) > 0 {
			params = append(params, strings.Join(curKeys, ","))
		}
		piece.Params = params
		out = append(out, piece)
		curChans, curKeys = nil, nil
	}

	for i, ch := range channels {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		trial := append(append([]string{}, curChans...), ch)
		params := []string{strings.Join(trial, ",")}
		if len(keys) > 0 {
			params = append(params, strings.Join(append(append([]string{}, curKeys...), key), ","))
		}
		probe := base.Clone()
		probe.Params = params
		if probe.Len() > maxLen && len(curChans) > 0 {
			flush()
		}

		curChans = append(curChans, ch)
		if key != "" || len(keys) > 0 {
			curKeys = append(curKeys, key)
		}
	}
	flush()

	if len(out) == 0 {
		return []*Message{m}
	}
	return out
}

// splitCSVTargets splits a comma-separated target list (NAMES, WHO,
// WHOIS, WHOWAS, MONITOR, ISON) across multiple lines once it would
// overflow maxLen, without ever splitting inside one target's name.
func splitCSVTargets(m *Message, maxLen int) []*Message {
	if len(m.Params) == 0 {
		return []*Message{m}
	}

	targets := strings.Split(m.Params[len(m.Params)-1], ",")
	base := m.Clone()
	base.Params = append([]string(nil), m.Params[:len(m.Params)-1]...)

	var out []*Message
	var cur []string

	flush := func() {
		if len(cur) == 0 {
			return
		}
		piece := base.Clone()
		piece.Params = append(append([]string{}, base.Params...), strings.Join(cur, ","))
		out = append(out, piece)
		cur = nil
	}

	for _, t := range targets {
		trial := append(append([]string{}, cur...), t)
		probe := base.Clone()
		probe.Params = append(append([]string{}, base.Params...), strings.Join(trial, ","))
		if probe.Len() > maxLen && len(cur) > 0 {
			flush()
		}
		cur = append(cur, t)
	}
	flush()

	if len(out) == 0 {
		return []*Message{m}
	}
	return out
}

// splitMessage splits m against the server's negotiated line length,
// falling back to the unsplit message for any command with no
// registered splitFunc.
func splitMessage(server *Server, m *Message) []*Message {
	maxLen := isupportInt(server, "LINELEN", maxIRCLine+len("\r\n")) - len("\r\n") - maxPrefixLen(server)

	if m.Len() <= maxLen {
		return []*Message{m}
	}

	fn, ok := splitFuncs[m.Command]
	if !ok {
		return []*Message{m}
	}

	return fn(m, maxLen)
}
