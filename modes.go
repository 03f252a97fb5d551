package ircore

import "strings"

// ModeChange is one parsed unit from a MODE line: a single letter, its
// add/remove direction, and (if applicable) its argument.
type ModeChange struct {
	Add  bool
	Name byte
	// HasArg is true if this mode letter carries an argument per the
	// channel's CHANMODES classification.
	HasArg bool
	Arg    string
}

// Short renders "+o" / "-b" without the argument.
func (m ModeChange) Short() string {
	sign := "+"
	if !m.Add {
		sign = "-"
	}

	return sign + string(m.Name)
}

func (m ModeChange) String() string {
	if m.Arg == "" {
		return m.Short()
	}

	return m.Short() + " " + m.Arg
}

// ModeSet tracks a channel's current non-prefix modes, classified per the
// server's CHANMODES=A,B,C,D token:
//
//	A: always takes an argument (and, with no argument, requests the list)
//	B: always takes an argument
//	C: takes an argument only when being set
//	D: never takes an argument
//
// Modes carried in PREFIX are handled separately by PrefixMap; they are
// per-nick, not per-channel.
type ModeSet struct {
	raw string

	listArgs string // A
	setArgs  string // B
	onArgs   string // C
	noArgs   string // D

	active []ModeChange
}

// NewModeSet builds a ModeSet from the server's CHANMODES token.
func NewModeSet(chanmodes string) ModeSet {
	parts := strings.SplitN(chanmodes, ",", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}

	return ModeSet{
		raw:      chanmodes,
		listArgs: parts[0],
		setArgs:  parts[1],
		onArgs:   parts[2],
		noArgs:   parts[3],
	}
}

func (ms *ModeSet) classify(add bool, mode byte) (hasArg bool) {
	if ms.raw == "" {
		return false
	}

	switch {
	case strings.IndexByte(ms.listArgs, mode) >= 0:
		return true
	case strings.IndexByte(ms.setArgs, mode) >= 0:
		return true
	case strings.IndexByte(ms.onArgs, mode) >= 0:
		return add
	default:
		return false
	}
}

// Parse consumes a MODE flags token (e.g. "+o-b+l") against its argument
// list, returning one ModeChange per letter, PREFIX letters included. A
// letter not named in CHANMODES takes no argument; handleMODE adds the
// PrefixMap letters to the classification before parsing.
func (ms *ModeSet) Parse(flags string, args []string) []ModeChange {
	var out []ModeChange

	add := true
	argN := 0

	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		mc := ModeChange{Name: flags[i], Add: add}
		if ms.classify(add, flags[i]) && argN < len(args) {
			mc.HasArg = true
			mc.Arg = args[argN]
			argN++
		}

		out = append(out, mc)
	}

	return out
}

// Apply folds a parsed change set into the set of currently-active B/C/D
// "setting" modes (A-class list modes are not tracked here; they live on
// the channel's Modelist collection).
func (ms *ModeSet) Apply(changes []ModeChange) {
	var next []ModeChange

	for _, cur := range ms.active {
		replaced, removed := false, false
		for _, c := range changes {
			if c.Name != cur.Name || !ms.isSetting(c.Name) {
				continue
			}
			if c.Add {
				next = append(next, c)
				replaced = true
			} else {
				removed = true
			}
			break
		}
		if !replaced && !removed {
			next = append(next, cur)
		}
	}

	for _, c := range changes {
		if !c.Add || !ms.isSetting(c.Name) {
			continue
		}

		found := false
		for _, n := range next {
			if n.Name == c.Name {
				found = true
				break
			}
		}
		if !found {
			next = append(next, c)
		}
	}

	ms.active = next
}

func (ms *ModeSet) isSetting(mode byte) bool {
	return strings.IndexByte(ms.listArgs, mode) < 0
}

// String renders the active non-list modes as "+ov arg1 arg2".
func (ms *ModeSet) String() string {
	if len(ms.active) == 0 {
		return ""
	}

	var letters, args strings.Builder
	letters.WriteByte('+')
	for _, m := range ms.active {
		letters.WriteByte(m.Name)
		if m.Arg != "" {
			args.WriteByte(' ')
			args.WriteString(m.Arg)
		}
	}

	return letters.String() + args.String()
}

func isValidChanModesToken(raw string) bool {
	if raw == "" {
		return false
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != ',' && (raw[i] < 'A' || raw[i] > 'Z') && (raw[i] < 'a' || raw[i] > 'z') {
			return false
		}
	}

	return true
}

// PrefixMap is the parsed ISUPPORT PREFIX=(modes)chars token: a
// rank-ordered correspondence between channel mode letters (o, v, ...)
// and their display-prefix characters (@, +, ...). Index 0 is the
// highest rank.
type PrefixMap struct {
	modes string
	chars string
}

// DefaultPrefixMap is used before ISUPPORT 005 has been received.
var DefaultPrefixMap = PrefixMap{modes: "ov", chars: "@+"}

// ParsePrefixMap parses a raw "(modes)chars" token, returning the zero
// value if malformed.
func ParsePrefixMap(raw string) PrefixMap {
	if len(raw) < 2 || raw[0] != '(' {
		return PrefixMap{}
	}

	end := strings.IndexByte(raw, ')')
	if end < 1 {
		return PrefixMap{}
	}

	modes := raw[1:end]
	chars := raw[end+1:]
	if len(modes) != len(chars) {
		return PrefixMap{}
	}

	return PrefixMap{modes: modes, chars: chars}
}

func (p PrefixMap) Valid() bool { return len(p.modes) > 0 }

// CharFor returns the display character for a mode letter, or 0.
func (p PrefixMap) CharFor(mode byte) byte {
	if i := strings.IndexByte(p.modes, mode); i >= 0 {
		return p.chars[i]
	}
	return 0
}

// ModeFor returns the mode letter for a display character, or 0.
func (p PrefixMap) ModeFor(char byte) byte {
	if i := strings.IndexByte(p.chars, char); i >= 0 {
		return p.modes[i]
	}
	return 0
}

// IsPrefixMode reports whether mode is one of this map's prefix letters.
func (p PrefixMap) IsPrefixMode(mode byte) bool {
	return strings.IndexByte(p.modes, mode) >= 0
}

// IsPrefixChar reports whether char is one of this map's display chars.
func (p PrefixMap) IsPrefixChar(char byte) bool {
	return strings.IndexByte(p.chars, char) >= 0
}

// Rank returns a char's rank (lower is higher-ranked), or -1 if unknown.
func (p PrefixMap) Rank(char byte) int {
	return strings.IndexByte(p.chars, char)
}

// Highest returns the highest-ranked char present in set, or 0.
func (p PrefixMap) Highest(set string) byte {
	best := -1
	var bestChar byte
	for i := 0; i < len(set); i++ {
		r := p.Rank(set[i])
		if r < 0 {
			continue
		}
		if best < 0 || r < best {
			best = r
			bestChar = set[i]
		}
	}
	return bestChar
}

// SortPrefixes reorders a set of prefix chars from highest to lowest rank.
func (p PrefixMap) SortPrefixes(set string) string {
	var out []byte
	for i := 0; i < len(p.chars); i++ {
		if strings.IndexByte(set, p.chars[i]) >= 0 {
			out = append(out, p.chars[i])
		}
	}
	return string(out)
}

// ParseUserPrefix splits a leading run of known prefix chars from a nick,
// e.g. "@+alice" -> ("@+", "alice", true). Used when parsing NAMES/WHO
// replies under multi-prefix.
func (p PrefixMap) ParseUserPrefix(raw string) (prefixes, nick string, ok bool) {
	i := 0
	for i < len(raw) && p.IsPrefixChar(raw[i]) {
		i++
	}

	if !IsValidNick(raw[i:]) {
		return "", "", false
	}

	return raw[:i], raw[i:], true
}

// handleMODE updates channel (and, for prefix letters, per-nick) state
// from an inbound MODE or RPL_CHANNELMODEIS.
func handleMODE(server *Server, m *Message) result {
	params := m.Params
	if m.Command == RPL_CHANNELMODEIS && len(params) > 2 {
		params = params[1:]
	}

	if len(params) < 2 || !IsValidChannelFor(params[0], server.ChanTypes()) {
		return resultOK
	}

	ch := server.lookupChannel(params[0])
	if ch == nil {
		return resultOK
	}

	flags := params[1]
	var args []string
	if len(params) > 2 {
		args = append(args, params[2:]...)
	}

	prefixes := server.PrefixMap()

	var modeArgs []ModeChange
	var prefixArgs []ModeChange

	// Prefix letters always carry a nick argument; parse with them
	// classified as B-class so their arguments line up.
	ms := ch.Modes
	ms.setArgs += prefixes.modes
	if ms.raw == "" {
		ms.raw = ms.setArgs
	}
	parsed := ms.Parse(flags, args)
	// Re-split: letters belonging to the prefix map are nick-scoped, not
	// channel-scoped, and must not pollute ch.Modes.active.
	for _, c := range parsed {
		if prefixes.IsPrefixMode(c.Name) {
			prefixArgs = append(prefixArgs, c)
		} else {
			modeArgs = append(modeArgs, c)
		}
	}

	ch.Modes.Apply(modeArgs)

	for _, c := range prefixArgs {
		if c.Arg == "" {
			continue
		}
		if mem := ch.lookupMembership(server.casemap(), c.Arg); mem != nil {
			char := prefixes.CharFor(c.Name)
			if char == 0 {
				continue
			}
			if c.Add {
				if !strings.ContainsRune(mem.Prefixes, rune(char)) {
					mem.Prefixes = prefixes.SortPrefixes(mem.Prefixes + string(char))
				}
			} else {
				mem.Prefixes = strings.ReplaceAll(mem.Prefixes, string(char), "")
			}
		}
	}

	return resultOK
}
