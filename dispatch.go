package ircore

import (
	"strconv"
	"time"
)

// protocolHandler is one entry in the dispatch table: a command or
// numeric name mapped to the function that updates server/channel state
// for it. Unlike the teacher's pluggable Caller/Handlers bus, this table
// is fixed at compile time; external observers attach via OnSignal
// instead of registering additional protocol handlers.
type protocolHandler func(server *Server, m *Message) result

var protocolTable = map[string]protocolHandler{
	PING: handlePING,
	PONG: handlePONG,

	CAP:          handleCAP,
	AUTHENTICATE: handleAUTHENTICATE,

	RPL_LOGGEDIN:    handleSASLResult,
	RPL_LOGGEDOUT:   handleSASLResult,
	RPL_SASLSUCCESS: handleSASLResult,
	ERR_NICKLOCKED:  handleSASLResult,
	ERR_SASLFAIL:    handleSASLResult,
	ERR_SASLTOOLONG: handleSASLResult,
	ERR_SASLABORTED: handleSASLResult,
	ERR_SASLALREADY: handleSASLResult,
	RPL_SASLMECHS:   handleSASLResult,

	JOIN:  handleJOIN,
	PART:  handlePART,
	KICK:  handleKICK,
	QUIT:  handleQUIT,
	NICK:  handleNICK,
	TOPIC: handleTOPIC,

	MODE:              handleMODE,
	RPL_CHANNELMODEIS: handleMODE,

	CHGHOST: handleCHGHOST,
	AWAY:    handleAWAY,
	ACCOUNT: handleACCOUNT,

	PRIVMSG: handlePRIVMSGOrNotice,
	NOTICE:  handlePRIVMSGOrNotice,
	TAGMSG:  handleTAGMSG,

	RPL_WELCOME:  handleWelcome,
	RPL_ISUPPORT: handleISUPPORT,

	ERR_ERRONEUSNICKNAME: handleNickUnavailable,
	ERR_NICKNAMEINUSE:    handleNickUnavailable,
	ERR_UNAVAILRESOURCE:  handleNickUnavailable,

	RPL_NAMREPLY:  handleNAMES,
	RPL_WHOREPLY:  handleWHO,
	RPL_WHOSPCRPL: handleWHO,

	RPL_MONONLINE:    handleMonitorOnline,
	RPL_MONOFFLINE:   handleMonitorOffline,
	RPL_MONLIST:      handleNoop,
	RPL_ENDOFMONLIST: handleNoop,
	ERR_MONLISTFULL:  handleNoop,

	RPL_BANLIST:        handleModelist,
	RPL_ENDOFBANLIST:   handleModelist,
	RPL_EXCEPTLIST:     handleModelist,
	RPL_ENDOFEXCEPT:    handleModelist,
	RPL_INVITELIST:     handleModelist,
	RPL_ENDOFINVITE:    handleModelist,
	RPL_QUIETLIST:      handleModelist,
	RPL_ENDOFQUIETLIST: handleModelist,

	ERROR: handleERROR,
	FAIL:  handleFAIL,
	WARN:  handleWARN,
	NOTE:  handleNOTE,
}

// handleProtocol looks up m.Command in the protocol table and, if found,
// runs it. Messages with no table entry (most replies a host application
// only needs for display) fall straight through to the signal stream.
func handleProtocol(server *Server, m *Message) result {
	h, ok := protocolTable[m.Command]
	if !ok {
		return resultOK
	}
	return h(server, m)
}

func handleNoop(server *Server, m *Message) result { return resultOK }

func handlePING(server *Server, m *Message) result {
	server.writeImmediate(&Message{Command: PONG, Trailing: m.Trailing})
	return resultOK
}

func handlePONG(server *Server, m *Message) result {
	server.mu.Lock()
	sent, err := strconv.ParseInt(m.Trailing, 10, 64)
	check := server.lagCheckTime
	if server.conn != nil {
		server.conn.lastActive = time.Now()
	}
	server.mu.Unlock()

	if err == nil {
		lag := time.Since(time.Unix(0, sent))
		server.core.Metrics.observeLag(server.cfg.Name, lag.Seconds())
	} else if !check.IsZero() {
		server.core.Metrics.observeLag(server.cfg.Name, time.Since(check).Seconds())
	}

	return resultOK
}

// handleAUTHENTICATE drives the SASL exchange: each continuation chunk
// is handed to the active saslSession, and its reply (if any) is written
// back as another AUTHENTICATE line.
func handleAUTHENTICATE(server *Server, m *Message) result {
	server.mu.Lock()
	sess := server.sasl
	server.mu.Unlock()

	if sess == nil {
		return resultOK
	}

	chunk := ""
	if len(m.Params) > 0 {
		chunk = m.Params[0]
	} else {
		chunk = m.Trailing
	}

	if chunk == "+" && sess.step == 0 && sess.clientFirstBare == "" && sess.saltedPassword == nil {
		server.writeImmediate(&Message{Command: AUTHENTICATE, Params: []string{sess.Start()}, Sensitive: true})
		return resultOK
	}

	reply, err := sess.Next(chunk)
	if err != nil {
		server.handleSASLFailure(err)
		return resultError
	}
	if reply != "" {
		server.writeImmediate(&Message{Command: AUTHENTICATE, Params: []string{reply}, Sensitive: true})
	}

	return resultOK
}

// handleSASLResult processes the 900-908 numeric range, completing or
// failing the SASL exchange. Success lets CAP negotiation proceed;
// failure is handed to handleSASLFailure and its sasl_fail policy.
func handleSASLResult(server *Server, m *Message) result {
	success, failure := classifySASLNumeric(m.Command)

	server.mu.Lock()
	server.sasl = nil
	server.mu.Unlock()

	switch {
	case failure:
		server.handleSASLFailure(&AuthError{Mechanism: m.Command, Reason: m.Trailing})
	case success:
		server.maybeEndCap()
	default:
		server.maybeEndCap()
	}

	return resultOK
}

// handleSASLFailure applies the configured sasl_fail policy: continue
// (default), reconnect, or disconnect.
func (s *Server) handleSASLFailure(err error) {
	s.mu.Lock()
	s.sasl = nil
	s.mu.Unlock()

	s.emitLifecycle("irc_server_sasl_failed")

	switch s.cfg.SASL.Fail {
	case SASLFailDisconnect, SASLFailReconnect:
		s.mu.Lock()
		cancel := s.cancelFunc
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		s.maybeEndCap()
	}
}

// handleWelcome captures the server-assigned nick (networks occasionally
// rewrite it during registration) and flips the server to connected.
func handleWelcome(server *Server, m *Message) result {
	if len(m.Params) > 0 {
		server.mu.Lock()
		server.currentNick = m.Params[0]
		server.mu.Unlock()
	}

	server.onRegistered()
	return resultOK
}

// handleNickUnavailable rotates to the next configured alternate nick and
// retries registration. Once every alternate and digit-suffix variant is
// exhausted, the connection is abandoned. Once connected, a nick-in-use
// error belongs to a user-issued NICK attempt instead and is left for the
// signal stream.
func handleNickUnavailable(server *Server, m *Message) result {
	if server.IsConnected() {
		return resultOK
	}

	next, ok := server.rotateNick()
	if !ok {
		server.emitLifecycle("irc_server_nicks_exhausted")
		server.mu.Lock()
		cancel := server.cancelFunc
		server.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return resultOK
	}

	server.writeImmediate(&Message{Command: NICK, Params: []string{next}})
	return resultOK
}

// handlePRIVMSGOrNotice applies ignore filtering, CTCP decoding, and
// channel-membership smart-filter bookkeeping.
func handlePRIVMSGOrNotice(server *Server, m *Message) result {
	if server.ignores.Matches(m.Source) {
		return resultEat
	}

	if len(m.Params) > 0 {
		_, target := splitStatusMsgTarget(server, m.Params[0])
		if ch := server.lookupChannel(target); ch != nil && m.Source != nil {
			if mem := ch.lookupMembership(server.casemap(), m.Source.Name); mem != nil {
				mem.LastSpoke = time.Now()
			}
		}
	}

	if ctcp := decodeCTCP(m); ctcp != nil {
		server.ctcp.call(server, ctcp)
	}

	return resultOK
}

func handleTAGMSG(server *Server, m *Message) result {
	if server.ignores.Matches(m.Source) {
		return resultEat
	}
	return resultOK
}

func handleModelist(server *Server, m *Message) result {
	letter, isEnd, ok := modelistLetterForNumeric(m.Command)
	if !ok || len(m.Params) < 2 {
		return resultOK
	}

	ch := server.lookupChannel(m.Params[1])
	if ch == nil {
		return resultOK
	}

	ml := ch.modelist(letter)

	if isEnd {
		ml.Finish()
		return resultOK
	}

	if len(m.Params) < 3 {
		return resultOK
	}

	entry := ModeEntry{Mask: m.Params[2]}
	if len(m.Params) > 3 {
		entry.SetBy = m.Params[3]
	}
	if len(m.Params) > 4 {
		if secs, err := strconv.ParseInt(m.Params[4], 10, 64); err == nil {
			entry.SetAt = time.Unix(secs, 0)
		}
	}

	ml.Add(entry)
	return resultOK
}

// handleMonitorOnline/Offline keep the notify list's last-known state in
// sync with RPL_MONONLINE (730) / RPL_MONOFFLINE (731).
func handleMonitorOnline(server *Server, m *Message) result {
	for _, hostmask := range splitMonitorTargets(m) {
		server.notify.setOnline(ParseSource(hostmask).Name, true)
	}
	return resultOK
}

func handleMonitorOffline(server *Server, m *Message) result {
	for _, hostmask := range splitMonitorTargets(m) {
		server.notify.setOnline(ParseSource(hostmask).Name, false)
	}
	return resultOK
}

func splitMonitorTargets(m *Message) []string {
	if m.Trailing == "" {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i <= len(m.Trailing); i++ {
		if i == len(m.Trailing) || m.Trailing[i] == ',' {
			if i > start {
				out = append(out, m.Trailing[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func handleERROR(server *Server, m *Message) result {
	server.emitLifecycle("irc_server_error")
	return resultOK
}

// handleFAIL/WARN/NOTE surface the IRCv3 standard-replies extension onto
// the signal stream without any state change; a host application is
// expected to display m.Trailing itself.
func handleFAIL(server *Server, m *Message) result { return resultOK }
func handleWARN(server *Server, m *Message) result { return resultOK }
func handleNOTE(server *Server, m *Message) result { return resultOK }
