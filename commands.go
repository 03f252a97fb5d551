package ircore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Commands is the outbound command API for one Server. Most methods
// build a Message, run it through splitMessage, and queue the result at
// the priority appropriate for the command; Nick, Ping, Pong, Oper, Away
// and Back write immediately, and Who, Whois and Whowas are sent through
// SendRedirected.
type Commands struct {
	s *Server
}

// Commands returns the outbound command surface for this server.
func (s *Server) Commands() *Commands { return &Commands{s: s} }

func (c *Commands) queue(priority Priority, m *Message) {
	for _, piece := range splitMessage(c.s, m) {
		_ = c.s.Send(priority, piece)
	}
}

// Nick requests a nickname change.
func (c *Commands) Nick(name string) {
	c.s.writeImmediate(&Message{Command: NICK, Params: []string{name}})
}

// Join joins one or more comma-separated channels.
func (c *Commands) Join(channels ...string) {
	c.queue(PriorityHigh, &Message{Command: JOIN, Params: []string{joinComma(channels)}})
}

// JoinKey joins channels paired with keys (equal-length slices; use ""
// for a channel with no key).
func (c *Commands) JoinKey(channels, keys []string) {
	c.queue(PriorityHigh, &Message{Command: JOIN, Params: []string{joinComma(channels), joinComma(keys)}})
}

// Part leaves one or more channels with no message.
func (c *Commands) Part(channels ...string) {
	c.queue(PriorityHigh, &Message{Command: PART, Params: []string{joinComma(channels)}})
}

// PartMessage leaves a channel with a custom message.
func (c *Commands) PartMessage(channel, message string) {
	c.queue(PriorityHigh, &Message{Command: PART, Params: []string{channel}, Trailing: message})
}

// splitStatusMsgTarget splits off the leading channel-membership-rank
// characters a server may allow prefixing a PRIVMSG/NOTICE target with
// (ISUPPORT STATUSMSG), e.g. "@#channel" to message only ops.
func splitStatusMsgTarget(server *Server, target string) (prefix, base string) {
	statusmsg, _ := server.ISupport("STATUSMSG")
	i := 0
	for i < len(target) && i < len(statusmsg) && containsByte(statusmsg, target[i]) {
		i++
	}
	return target[:i], target[i:]
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

// Message sends a PRIVMSG to target, splitting on ISUPPORT STATUSMSG so
// "@#channel" style targets are preserved across split lines.
func (c *Commands) Message(target, text string) {
	prefix, base := splitStatusMsgTarget(c.s, target)
	c.queue(PriorityLow, &Message{Command: PRIVMSG, Params: []string{prefix + base}, Trailing: text})
}

// Messagef is Message with fmt.Sprintf-style formatting.
func (c *Commands) Messagef(target, format string, args ...interface{}) {
	c.Message(target, fmt.Sprintf(format, args...))
}

// Action sends a CTCP ACTION ("/me") to target.
func (c *Commands) Action(target, text string) {
	c.queue(PriorityLow, &Message{Command: PRIVMSG, Params: []string{target}, Trailing: encodeCTCPRaw(CTCPAction, text)})
}

// Actionf is Action with fmt.Sprintf-style formatting.
func (c *Commands) Actionf(target, format string, args ...interface{}) {
	c.Action(target, fmt.Sprintf(format, args...))
}

// Notice sends a NOTICE to target.
func (c *Commands) Notice(target, text string) {
	c.queue(PriorityLow, &Message{Command: NOTICE, Params: []string{target}, Trailing: text})
}

// Noticef is Notice with fmt.Sprintf-style formatting.
func (c *Commands) Noticef(target, format string, args ...interface{}) {
	c.Notice(target, fmt.Sprintf(format, args...))
}

// SendCTCP issues a CTCP query to target as a PRIVMSG.
func (c *Commands) SendCTCP(target, cmd, text string) {
	c.queue(PriorityLow, &Message{Command: PRIVMSG, Params: []string{target}, Trailing: encodeCTCPRaw(cmd, text)})
}

// SendCTCPf is SendCTCP with fmt.Sprintf-style formatting.
func (c *Commands) SendCTCPf(target, cmd, format string, args ...interface{}) {
	c.SendCTCP(target, cmd, fmt.Sprintf(format, args...))
}

// SendRaw queues a raw command line, parsed as if it had arrived as
// user input.
func (c *Commands) SendRaw(line string) {
	if m := ParseMessage(line); m != nil {
		c.queue(PriorityLow, m)
	}
}

// SendRawf is SendRaw with fmt.Sprintf-style formatting.
func (c *Commands) SendRawf(format string, args ...interface{}) {
	c.SendRaw(fmt.Sprintf(format, args...))
}

// Topic requests a channel's current topic.
func (c *Commands) Topic(channel string) {
	c.queue(PriorityLow, &Message{Command: TOPIC, Params: []string{channel}})
}

// SetTopic sets a channel's topic.
func (c *Commands) SetTopic(channel, topic string) {
	c.queue(PriorityLow, &Message{Command: TOPIC, Params: []string{channel}, Trailing: topic})
}

// Who issues a WHO query, redirecting the RPL_WHOREPLY/RPL_ENDOFWHO
// sequence to done.
func (c *Commands) Who(mask string, done func(RedirectResult)) {
	rd := NewRedirect(WHO, []string{mask}, nil, []string{RPL_ENDOFWHO}, nil, 15*time.Second, done)
	_ = c.s.SendRedirected(PriorityLow, &Message{Command: WHO, Params: []string{mask}}, rd)
}

// Whois issues a WHOIS query, redirecting the 311-319/ENDOFWHOIS
// sequence to done.
func (c *Commands) Whois(nick string, done func(RedirectResult)) {
	rd := NewRedirect(WHOIS, []string{nick}, nil, []string{RPL_ENDOFWHOIS}, []string{ERR_NOSUCHNICK}, 15*time.Second, done)
	_ = c.s.SendRedirected(PriorityLow, &Message{Command: WHOIS, Params: []string{nick}}, rd)
}

// Whowas issues a WHOWAS query, redirecting its reply sequence to done.
func (c *Commands) Whowas(nick string, done func(RedirectResult)) {
	rd := NewRedirect(WHOWAS, []string{nick}, nil, []string{RPL_ENDOFWHOWAS}, []string{ERR_NOSUCHNICK}, 15*time.Second, done)
	_ = c.s.SendRedirected(PriorityLow, &Message{Command: WHOWAS, Params: []string{nick}}, rd)
}

// Ping sends a client-initiated PING with a nanosecond timestamp
// trailing, matching the idle-PING format pingLoop uses.
func (c *Commands) Ping() {
	c.s.writeImmediate(&Message{Command: PING, Trailing: fmt.Sprintf("%d", time.Now().UnixNano())})
}

// Pong replies to a server PING.
func (c *Commands) Pong(trailing string) {
	c.s.writeImmediate(&Message{Command: PONG, Trailing: trailing})
}

// Oper authenticates as an IRC operator; the credentials are marked
// Sensitive so they never hit the raw wire log.
func (c *Commands) Oper(user, pass string) {
	c.s.writeImmediate(&Message{Command: OPER, Params: []string{user, pass}, Sensitive: true})
}

// Kick removes target from channel, optionally with a reason.
func (c *Commands) Kick(channel, target, reason string) {
	if reason == "" {
		reason = c.s.cfg.MsgKick
	}
	c.queue(PriorityHigh, &Message{Command: KICK, Params: []string{channel, target}, Trailing: reason})
}

// Invite invites target to channel.
func (c *Commands) Invite(channel, target string) {
	c.queue(PriorityHigh, &Message{Command: INVITE, Params: []string{target, channel}})
}

// Away marks the client away with reason; an empty reason clears it.
func (c *Commands) Away(reason string) {
	c.s.writeImmediate(&Message{Command: AWAY, Trailing: reason})
}

// Back clears away status.
func (c *Commands) Back() {
	c.s.writeImmediate(&Message{Command: AWAY})
}

// List requests the channel list, optionally filtered to the given
// channels.
func (c *Commands) List(channels ...string) {
	m := &Message{Command: LIST}
	if len(channels) > 0 {
		m.Params = []string{joinComma(channels)}
	}
	c.queue(PriorityLow, m)
}

// Monitor adds nicks to both the server-side MONITOR list and the local
// notifyList mirror.
func (c *Commands) Monitor(nicks ...string) {
	for _, n := range nicks {
		c.s.notify.Add(n)
	}
	c.queue(PriorityLow, &Message{Command: MONITOR, Params: []string{"+", joinComma(nicks)}})
}

// Unmonitor removes nicks from MONITOR tracking.
func (c *Commands) Unmonitor(nicks ...string) {
	for _, n := range nicks {
		c.s.notify.Remove(n)
	}
	c.queue(PriorityLow, &Message{Command: MONITOR, Params: []string{"-", joinComma(nicks)}})
}

// Multiline sends lines to target as a client-initiated draft/multiline
// BATCH, for servers that negotiated the capability: a locally-generated
// uuid stands in for the server-assigned reference a receiving batch
// would normally carry.
func (c *Commands) Multiline(target string, lines []string) {
	if len(lines) == 0 {
		return
	}

	if !c.s.HasCapability("draft/multiline") {
		for _, line := range lines {
			c.Message(target, line)
		}
		return
	}

	ref := uuid.New().String()

	c.queue(PriorityLow, &Message{Command: BATCH, Params: []string{"+" + ref, "draft/multiline", target}})
	for _, line := range lines {
		m := &Message{Command: PRIVMSG, Params: []string{target}, Trailing: line}
		m.Tags = Tags{"batch": ref}
		c.queue(PriorityLow, m)
	}
	c.queue(PriorityLow, &Message{Command: BATCH, Params: []string{"-" + ref}})
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
