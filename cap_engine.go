package ircore

import "strings"

const (
	capLS   = "LS"
	capLIST = "LIST"
	capREQ  = "REQ"
	capACK  = "ACK"
	capNAK  = "NAK"
	capEND  = "END"
	capNEW  = "NEW"
	capDEL  = "DEL"
)

// capEngine drives the CAP LS/REQ/ACK/NAK/NEW/DEL negotiation described
// : request every capability both the server advertises
// and this build supports, holding registration (no CAP END) until the
// exchange settles.
type capEngine struct {
	available map[string]string // name -> value, from the most recent LS burst
	enabled   map[string]bool
	pending   []string // requested, awaiting ACK/NAK
	lsDone    bool
}

func newCapEngine() *capEngine {
	return &capEngine{
		available: make(map[string]string),
		enabled:   make(map[string]bool),
	}
}

func (e *capEngine) isEnabled(name string) bool { return e.enabled[name] }

func (e *capEngine) enabledList() []string {
	out := make([]string, 0, len(e.enabled))
	for k := range e.enabled {
		out = append(out, k)
	}
	return out
}

// startCapNegotiation opens the CAP exchange with CAP LS 302 (the
// version that adds capability values)
func (s *Server) startCapNegotiation() {
	s.writeImmediate(&Message{Command: CAP, Params: []string{capLS, "302"}})
}

// parseCapTokens parses a CAP LS/LIST/ACK trailing token list, where
// each token is "name" or "name=value".
func parseCapTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(raw) {
		if i := strings.IndexByte(tok, '='); i >= 0 {
			out[tok[:i]] = tok[i+1:]
		} else {
			out[tok] = ""
		}
	}
	return out
}

func wantedCapabilities(available map[string]string, extra []string) []string {
	want := make(map[string]bool)
	for _, n := range SupportedCapabilities {
		if _, ok := available[n]; ok {
			want[n] = true
		}
	}
	for _, n := range extra {
		if _, ok := available[n]; ok {
			want[n] = true
		}
	}

	out := make([]string, 0, len(want))
	for n := range want {
		out = append(out, n)
	}
	return out
}

// handleCAP implements the full negotiation state machine.
func handleCAP(server *Server, m *Message) result {
	if len(m.Params) < 2 {
		return resultOK
	}

	sub := strings.ToUpper(m.Params[1])
	cap := server.caps

	switch sub {
	case capNEW:
		server.mu.Lock()
		for k, v := range parseCapTokens(m.Trailing) {
			cap.available[k] = v
		}
		req := wantedCapabilities(cap.available, server.cfg.Capabilities)
		var fresh []string
		for _, r := range req {
			if !cap.enabled[r] {
				fresh = append(fresh, r)
			}
		}
		if len(fresh) > 0 {
			cap.pending = append(cap.pending, fresh...)
		}
		server.mu.Unlock()

		if len(fresh) > 0 {
			server.writeImmediate(&Message{Command: CAP, Params: []string{capREQ}, Trailing: strings.Join(fresh, " ")})
		}
		return resultOK

	case capDEL:
		server.mu.Lock()
		for k := range parseCapTokens(m.Trailing) {
			delete(cap.enabled, k)
			delete(cap.available, k)
		}
		server.mu.Unlock()
		return resultOK

	case capLS:
		server.mu.Lock()
		for k, v := range parseCapTokens(m.Trailing) {
			cap.available[k] = v
		}

		// A multi-line LS burst has a "*" continuation marker as params[2].
		if len(m.Params) >= 3 && m.Params[2] == "*" {
			server.mu.Unlock()
			return resultOK
		}

		cap.lsDone = true
		want := wantedCapabilities(cap.available, server.cfg.Capabilities)
		if len(want) > 0 {
			cap.pending = want
		}
		server.mu.Unlock()

		if len(want) == 0 {
			server.writeImmediate(&Message{Command: CAP, Params: []string{capEND}})
			return resultOK
		}
		server.writeImmediate(&Message{Command: CAP, Params: []string{capREQ}, Trailing: strings.Join(want, " ")})
		return resultOK

	case capACK:
		server.mu.Lock()
		for name := range parseCapTokens(m.Trailing) {
			cap.enabled[name] = true
			cap.pending = removeString(cap.pending, name)

			if name == "sasl" && server.cfg.SASL.Mechanism != "" {
				server.mu.Unlock()
				server.beginSASL()
				return resultOK
			}
		}
		server.mu.Unlock()
		server.maybeEndCap()
		return resultOK

	case capNAK:
		server.mu.Lock()
		for name := range parseCapTokens(m.Trailing) {
			cap.pending = removeString(cap.pending, name)
		}
		server.mu.Unlock()
		server.maybeEndCap()
		return resultOK

	case capLIST:
		return resultOK
	}

	return resultOK
}

// maybeEndCap sends CAP END once there is no SASL exchange in flight and
// no REQ is still awaiting a response.
func (s *Server) maybeEndCap() {
	s.mu.Lock()
	saslActive := s.sasl != nil
	pending := len(s.caps.pending)
	s.mu.Unlock()

	if saslActive || pending > 0 {
		return
	}
	s.writeImmediate(&Message{Command: CAP, Params: []string{capEND}})
}

func removeString(list []string, want string) []string {
	out := list[:0]
	for _, s := range list {
		if s != want {
			out = append(out, s)
		}
	}
	return out
}

// handleCHGHOST updates the Ident/Host of every tracked membership for
// the renaming nick across all joined channels.
func handleCHGHOST(server *Server, m *Message) result {
	if len(m.Params) != 2 || m.Source == nil {
		return resultOK
	}

	for _, ch := range server.channels.all() {
		if mem := ch.lookupMembership(server.casemap(), m.Source.Name); mem != nil {
			mem.Nick.Ident = m.Params[0]
			mem.Nick.Host = m.Params[1]
		}
	}

	return resultOK
}

// handleAWAY updates away state for every tracked membership matching
// the source nick (away-notify).
func handleAWAY(server *Server, m *Message) result {
	if m.Source == nil {
		return resultOK
	}

	for _, ch := range server.channels.all() {
		if mem := ch.lookupMembership(server.casemap(), m.Source.Name); mem != nil {
			mem.Nick.Away = !m.EmptyTrailing && m.Trailing != ""
			mem.Nick.AwayMessage = m.Trailing
		}
	}

	return resultOK
}

// handleACCOUNT updates the services account for every tracked
// membership matching the source nick (account-notify).
func handleACCOUNT(server *Server, m *Message) result {
	if len(m.Params) != 1 || m.Source == nil {
		return resultOK
	}

	account := m.Params[0]
	if account == "*" {
		account = ""
	}

	for _, ch := range server.channels.all() {
		if mem := ch.lookupMembership(server.casemap(), m.Source.Name); mem != nil {
			mem.Nick.Account = account
		}
	}

	return resultOK
}

// applyMessageAccountTag records the IRCv3 "account" tag carried on any
// message (not just ACCOUNT itself) onto the source's membership state.
func applyMessageAccountTag(server *Server, m *Message) {
	if m.Source == nil || len(m.Tags) == 0 {
		return
	}

	account, ok := m.Tags.Get("account")
	if !ok {
		return
	}

	for _, ch := range server.channels.all() {
		if mem := ch.lookupMembership(server.casemap(), m.Source.Name); mem != nil {
			mem.Nick.Account = account
		}
	}
}
