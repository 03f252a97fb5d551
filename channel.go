package ircore

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// ChannelType distinguishes a real multi-user channel from a
// single-target "private" buffer (query window).
type ChannelType uint8

const (
	ChannelTypeChannel ChannelType = iota
	ChannelTypePrivate
)

// Channel is a joined (or previously-joined, if Part is set) channel.
// A Server is the exclusive owner of its Channels.
type Channel struct {
	// Name is stored in wire case; Fold the server's casemapping over it
	// for comparisons. Name is immutable after creation.
	Name string
	Type ChannelType

	Topic      string
	TopicSetBy string
	TopicSetAt time.Time

	Created time.Time
	Joined  time.Time

	Modes ModeSet
	// Modelists holds the ban/except/invite/quiet collections, keyed by
	// mode letter (commonly b, e, I, q).
	Modelists map[byte]*Modelist

	Key string

	// Part marks a locally-departed channel whose buffer is retained.
	Part bool
	// Cycle marks a channel queued for a part-then-rejoin (e.g. key
	// change) rather than a user-requested part.
	Cycle bool
	// HasQuitServer marks a channel whose only remaining record is of the
	// local user having quit the server entirely, not parted.
	HasQuitServer bool

	AwayMessage string

	// JoinMsgReceived tracks which one-shot numerics (topic, names, ...)
	// have already been surfaced for this join, so a netsplit rejoin
	// doesn't replay them.
	JoinMsgReceived map[string]bool

	// WHOXCheckCounter increments each away-check cycle so handlers can
	// detect a stale in-flight WHO.
	WHOXCheckCounter int

	memberships cmap.ConcurrentMap[string, *membership]
}

func newChannel(name string, chType ChannelType, modeset string, network string) *Channel {
	_ = network
	return &Channel{
		Name:            name,
		Type:            chType,
		Created:         time.Now(),
		Joined:          time.Now(),
		Modes:           NewModeSet(modeset),
		Modelists:       make(map[byte]*Modelist),
		JoinMsgReceived: make(map[string]bool),
		memberships:     cmap.New[*membership](),
	}
}

// Len returns the number of tracked members.
func (ch *Channel) Len() int {
	return ch.memberships.Count()
}

// NickNames returns the case-preserving names of all tracked members.
func (ch *Channel) NickNames() []string {
	var out []string
	for entry := range ch.memberships.IterBuffered() {
		out = append(out, entry.Val.Nick.Name)
	}
	return out
}

// Members returns the tracked membership records.
func (ch *Channel) Members() []*membership {
	var out []*membership
	for entry := range ch.memberships.IterBuffered() {
		out = append(out, entry.Val)
	}
	return out
}

func (ch *Channel) lookupMembership(cm CaseMapping, name string) *membership {
	m, ok := ch.memberships.Get(cm.Fold(name))
	if !ok {
		return nil
	}
	return m
}

func (ch *Channel) addMembership(cm CaseMapping, n *Nick, prefixes string) *membership {
	key := cm.Fold(n.Name)
	if existing, ok := ch.memberships.Get(key); ok {
		return existing
	}

	m := &membership{Nick: n, Prefixes: prefixes}
	ch.memberships.Set(key, m)
	return m
}

func (ch *Channel) removeMembership(cm CaseMapping, name string) {
	ch.memberships.Remove(cm.Fold(name))
}

func (ch *Channel) renameMembership(cm CaseMapping, from, to string) {
	key := cm.Fold(from)
	m, ok := ch.memberships.Get(key)
	if !ok {
		return
	}
	ch.memberships.Remove(key)
	ch.memberships.Set(cm.Fold(to), m)
}

func (ch *Channel) modelist(letter byte) *Modelist {
	ml, ok := ch.Modelists[letter]
	if !ok {
		ml = newModelist(letter)
		ch.Modelists[letter] = ml
	}
	return ml
}

// channelRegistry is the concurrent, casemapping-aware Server.Channels
// collection. Keys are case-folded names; Channel.Name keeps wire case.
type channelRegistry struct {
	cm   CaseMapping
	data cmap.ConcurrentMap[string, *Channel]
}

func newChannelRegistry(cm CaseMapping) *channelRegistry {
	return &channelRegistry{cm: cm, data: cmap.New[*Channel]()}
}

func (r *channelRegistry) get(name string) *Channel {
	ch, ok := r.data.Get(r.cm.Fold(name))
	if !ok {
		return nil
	}
	return ch
}

func (r *channelRegistry) create(name string, chType ChannelType, chanmodes, network string) *Channel {
	key := r.cm.Fold(name)
	if existing, ok := r.data.Get(key); ok {
		return existing
	}

	ch := newChannel(name, chType, chanmodes, network)
	r.data.Set(key, ch)
	return ch
}

func (r *channelRegistry) remove(name string) {
	r.data.Remove(r.cm.Fold(name))
}

func (r *channelRegistry) all() []*Channel {
	var out []*Channel
	for entry := range r.data.IterBuffered() {
		out = append(out, entry.Val)
	}
	return out
}

func (r *channelRegistry) clear() {
	r.data.Clear()
}
