package ircore

import "time"

// ModelistState tracks the lifecycle of a single modelist collection
// fetch, driven by the numeric stream 346-349/367-368/728-729.
type ModelistState uint8

const (
	ModelistIdle ModelistState = iota
	ModelistReceiving
	ModelistReceived
)

// ModeEntry is one mask entry in a modelist (ban, except, invite, quiet).
type ModeEntry struct {
	Mask    string
	SetBy   string
	SetAt   time.Time
}

// Modelist is a per-channel collection of mask entries for one
// list-type (A-class) channel mode letter, e.g. 'b' for bans.
type Modelist struct {
	Letter byte
	State  ModelistState
	Items  []ModeEntry
}

func newModelist(letter byte) *Modelist {
	return &Modelist{Letter: letter, State: ModelistIdle}
}

// Add appends an entry, transitioning Idle -> Receiving.
func (ml *Modelist) Add(entry ModeEntry) {
	if ml.State == ModelistIdle {
		ml.State = ModelistReceiving
		ml.Items = nil
	}
	ml.Items = append(ml.Items, entry)
}

// Finish transitions Receiving -> Received on the matching end-of-list
// numeric.
func (ml *Modelist) Finish() {
	ml.State = ModelistReceived
}

// Reset discards the collection, e.g. on reconnect.
func (ml *Modelist) Reset() {
	ml.State = ModelistIdle
	ml.Items = nil
}

// modelistLetterForNumeric maps an inbound numeric to the channel mode
// letter whose collection it feeds, and whether it is the terminal
// (end-of-list) numeric for that letter.
func modelistLetterForNumeric(numeric string) (letter byte, end bool, ok bool) {
	switch numeric {
	case RPL_BANLIST:
		return 'b', false, true
	case RPL_ENDOFBANLIST:
		return 'b', true, true
	case RPL_EXCEPTLIST:
		return 'e', false, true
	case RPL_ENDOFEXCEPT:
		return 'e', true, true
	case RPL_INVITELIST:
		return 'I', false, true
	case RPL_ENDOFINVITE:
		return 'I', true, true
	case RPL_QUIETLIST:
		return 'q', false, true
	case RPL_ENDOFQUIETLIST:
		return 'q', true, true
	default:
		return 0, false, false
	}
}
