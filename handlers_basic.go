package ircore

import (
	"strings"
	"time"
)

// handleJOIN tracks a channel gaining a member: creating the Channel
// record on first join, registering the Nick, and (for the local user's
// own join) issuing the WHO/MODE follow-ups that populate membership
// rank and away state.
func handleJOIN(server *Server, m *Message) result {
	if len(m.Params) == 0 || m.Source == nil {
		return resultOK
	}

	name := m.Params[0]
	cm := server.casemap()

	ch := server.channels.get(name)
	if ch == nil {
		ch = server.channels.create(name, ChannelTypeChannel, "", server.Name())
	}
	ch.Part = false

	n := server.lookupNick(m.Source.Name)
	if n == nil {
		n = &Nick{Name: m.Source.Name, Ident: m.Source.Ident, Host: m.Source.Host, FirstSeen: time.Now()}
		server.trackNick(n)
	} else {
		n.Ident = m.Source.Ident
		n.Host = m.Source.Host
	}
	n.touch()

	// extended-join appends account and realname after the channel name.
	if server.HasCapability("extended-join") && len(m.Params) >= 2 {
		account := m.Params[1]
		if account != "*" {
			n.Account = account
		}
		if m.Trailing != "" {
			n.Realname = m.Trailing
		}
	}

	ch.addMembership(cm, n, "")

	if cm.Equal(m.Source.Name, server.CurrentNick()) {
		server.writeImmediate(&Message{Command: MODE, Params: []string{name}})
		server.writeImmediate(&Message{Command: WHO, Params: []string{name, "%tacuhnr,1"}})
	}

	return resultOK
}

// handlePART removes a membership. When the local user leaves, the
// channel is kept and marked Part if autorejoin is on, and removed
// otherwise.
func handlePART(server *Server, m *Message) result {
	if len(m.Params) == 0 || m.Source == nil {
		return resultOK
	}

	name := m.Params[0]
	cm := server.casemap()

	ch := server.channels.get(name)
	if ch == nil {
		return resultOK
	}

	if cm.Equal(m.Source.Name, server.CurrentNick()) {
		if server.cfg.Autorejoin {
			ch.Part = true
		} else {
			server.channels.remove(name)
		}
		return resultOK
	}

	ch.removeMembership(cm, m.Source.Name)
	return resultOK
}

// handleKICK removes the kicked nick's membership, exactly like PART but
// with a different actor/target split in the params.
func handleKICK(server *Server, m *Message) result {
	if len(m.Params) < 2 {
		return resultOK
	}

	name, target := m.Params[0], m.Params[1]
	cm := server.casemap()

	ch := server.channels.get(name)
	if ch == nil {
		return resultOK
	}

	if cm.Equal(target, server.CurrentNick()) {
		if server.cfg.Autorejoin {
			ch.Part = true
		} else {
			server.channels.remove(name)
		}
		return resultOK
	}

	ch.removeMembership(cm, target)
	return resultOK
}

// handleQUIT drops the departing nick from every channel it was tracked
// in and from the server-wide nick registry.
func handleQUIT(server *Server, m *Message) result {
	if m.Source == nil {
		return resultOK
	}

	cm := server.casemap()

	for _, ch := range server.channels.all() {
		ch.removeMembership(cm, m.Source.Name)
	}

	server.nicks.Remove(cm.Fold(m.Source.Name))
	return resultOK
}

// handleNICK renames a tracked nick across the server-wide registry and
// every channel membership, and keeps Server.currentNick in sync for the
// local user's own rename.
func handleNICK(server *Server, m *Message) result {
	if len(m.Params) == 0 || m.Source == nil {
		return resultOK
	}

	oldName, newName := m.Source.Name, m.Params[0]
	cm := server.casemap()

	if n := server.lookupNick(oldName); n != nil {
		server.nicks.Remove(cm.Fold(oldName))
		n.Name = newName
		n.touch()
		server.trackNick(n)
	}

	for _, ch := range server.channels.all() {
		ch.renameMembership(cm, oldName, newName)
	}

	if cm.Equal(oldName, server.CurrentNick()) {
		server.mu.Lock()
		server.currentNick = newName
		server.mu.Unlock()
	}

	return resultOK
}

// handleTOPIC records a live TOPIC command (channel in params[0]). The
// RPL_TOPIC / RPL_TOPICWHOTIME replies are not routed here and do not
// update the channel topic.
func handleTOPIC(server *Server, m *Message) result {
	if len(m.Params) == 0 {
		return resultOK
	}

	ch := server.channels.get(m.Params[0])
	if ch == nil {
		return resultOK
	}

	ch.Topic = m.Trailing
	if m.Source != nil {
		ch.TopicSetBy = m.Source.Name
	}
	ch.TopicSetAt = time.Now()

	return resultOK
}

// handleNAMES accumulates one RPL_NAMREPLY line's member list into the
// channel's membership set, honoring multi-prefix and userhost-in-names.
func handleNAMES(server *Server, m *Message) result {
	if len(m.Params) < 3 {
		return resultOK
	}

	ch := server.channels.get(m.Params[len(m.Params)-1])
	if ch == nil {
		return resultOK
	}

	cm := server.casemap()
	prefixes := server.PrefixMap()

	for _, tok := range strings.Fields(m.Trailing) {
		raw := tok
		ident, host := "", ""

		if server.HasCapability("userhost-in-names") {
			if bang := strings.IndexByte(raw, '!'); bang >= 0 {
				if at := strings.IndexByte(raw[bang:], '@'); at >= 0 {
					host = raw[bang+at+1:]
					ident = raw[bang+1 : bang+at]
					raw = raw[:bang]
				}
			}
		}

		pfx, nickName, ok := prefixes.ParseUserPrefix(raw)
		if !ok {
			continue
		}

		n := server.lookupNick(nickName)
		if n == nil {
			n = &Nick{Name: nickName, Ident: ident, Host: host, FirstSeen: time.Now()}
			server.trackNick(n)
		}

		ch.addMembership(cm, n, pfx)
	}

	return resultOK
}

// handleWHO absorbs RPL_WHOREPLY (352) and its WHOX variant RPL_WHOSPCRPL
// (354, requested with the "%tacuhnr,1" field string in handleJOIN and
// runAwayCheck) to refresh away state, ident/host, and account.
func handleWHO(server *Server, m *Message) result {
	if m.Command == RPL_WHOSPCRPL {
		return handleWHOX(server, m)
	}

	// 352: me chan ident host server nick flags :hopcount realname
	if len(m.Params) < 6 {
		return resultOK
	}

	ident, host, nickName, flags := m.Params[2], m.Params[3], m.Params[5], ""
	if len(m.Params) > 6 {
		flags = m.Params[6]
	}

	n := server.lookupNick(nickName)
	if n == nil {
		n = &Nick{Name: nickName, FirstSeen: time.Now()}
		server.trackNick(n)
	}
	n.Ident = ident
	n.Host = host
	n.Away = strings.HasPrefix(flags, "G")

	if len(m.Params) > 0 {
		if ch := server.channels.get(m.Params[1]); ch != nil {
			ch.addMembership(server.casemap(), n, "")
		}
	}

	return resultOK
}

// handleWHOX parses the "%tacuhnr,1" field layout used by handleJOIN and
// runAwayCheck: query-type, account, ident, host, nick, flags, realname.
func handleWHOX(server *Server, m *Message) result {
	if len(m.Params) < 7 {
		return resultOK
	}

	account, ident, host, nickName, flags := m.Params[2], m.Params[3], m.Params[4], m.Params[5], m.Params[6]

	n := server.lookupNick(nickName)
	if n == nil {
		n = &Nick{Name: nickName, FirstSeen: time.Now()}
		server.trackNick(n)
	}
	n.Ident = ident
	n.Host = host
	n.Away = strings.HasPrefix(flags, "G")
	if account != "0" {
		n.Account = account
	}
	if m.Trailing != "" {
		n.Realname = m.Trailing
	}

	return resultOK
}
