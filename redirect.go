package ircore

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RedirectState is the lifecycle of a transient command->response
// capture.
type RedirectState uint8

const (
	RedirectPending RedirectState = iota
	RedirectActive
	RedirectDone
	RedirectError
	RedirectTimeout
)

func (s RedirectState) String() string {
	switch s {
	case RedirectActive:
		return "active"
	case RedirectDone:
		return "done"
	case RedirectError:
		return "error"
	case RedirectTimeout:
		return "timeout"
	default:
		return "pending"
	}
}

// RedirectResult is delivered to a Redirect's completion callback.
type RedirectResult struct {
	State    RedirectState
	Messages []*Message
}

// Redirect captures the multi-message response to one outbound command
// so a programmatic caller can consume it instead of (or in addition to)
// the display path.
type Redirect struct {
	// ID uniquely identifies this redirect for logging/tracing; it has
	// no wire meaning.
	ID uuid.UUID

	// OwnerCommand is the command this redirect arms on, e.g. "WHOIS".
	OwnerCommand string
	// OwnerArgs, if non-empty, must match the outbound command's
	// argument list for this redirect to bind to it.
	OwnerArgs []string

	StartCmd map[string]bool
	StopCmd  map[string]bool
	ErrorCmd map[string]bool

	Timeout time.Duration

	done func(RedirectResult)

	state     RedirectState
	started   bool
	start     time.Time
	collected []*Message
}

// NewRedirect builds a Redirect; an empty startCmd means the first
// matching response starts capture immediately.
func NewRedirect(ownerCmd string, ownerArgs, startCmd, stopCmd, errorCmd []string, timeout time.Duration, done func(RedirectResult)) *Redirect {
	return &Redirect{
		ID:           uuid.New(),
		OwnerCommand: strings.ToUpper(ownerCmd),
		OwnerArgs:    ownerArgs,
		StartCmd:     toSet(startCmd),
		StopCmd:      toSet(stopCmd),
		ErrorCmd:     toSet(errorCmd),
		Timeout:      timeout,
		done:         done,
		state:        RedirectPending,
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[strings.ToUpper(i)] = true
	}
	return set
}

func (r *Redirect) matchesOwner(command string, args []string) bool {
	if !strings.EqualFold(r.OwnerCommand, command) {
		return false
	}
	if len(r.OwnerArgs) == 0 {
		return true
	}
	if len(args) < len(r.OwnerArgs) {
		return false
	}
	for i, want := range r.OwnerArgs {
		if !strings.EqualFold(args[i], want) {
			return false
		}
	}
	return true
}

func (r *Redirect) arm() {
	r.state = RedirectActive
	r.start = time.Now()
}

// feed offers an inbound message to an armed redirect. It returns true
// if the message was consumed (and must not reach the dispatcher's
// display path). A redirect still RedirectPending has not yet had its
// owning command sent and must never be offered here; the registry
// enforces that before calling in.
func (r *Redirect) feed(m *Message) bool {
	if r.state != RedirectActive {
		return false
	}

	if !r.started {
		if len(r.StartCmd) == 0 || r.StartCmd[m.Command] {
			r.started = true
		} else {
			return false
		}
	}

	r.collected = append(r.collected, m)

	switch {
	case r.ErrorCmd[m.Command]:
		r.finish(RedirectError)
		return true
	case r.StopCmd[m.Command]:
		r.finish(RedirectDone)
		return true
	default:
		return true
	}
}

func (r *Redirect) expired(now time.Time) bool {
	return r.state == RedirectActive && r.Timeout > 0 && now.Sub(r.start) >= r.Timeout
}

func (r *Redirect) timeoutNow() {
	r.finish(RedirectTimeout)
}

func (r *Redirect) finish(state RedirectState) {
	r.state = state
	if r.done != nil {
		r.done(RedirectResult{State: state, Messages: r.collected})
	}
}

// redirectRegistry is the per-server ordered collection of pending and
// active redirects.
type redirectRegistry struct {
	mu    sync.Mutex
	items []*Redirect
}

func newRedirectRegistry() *redirectRegistry {
	return &redirectRegistry{}
}

func (r *redirectRegistry) add(rd *Redirect) {
	r.mu.Lock()
	r.items = append(r.items, rd)
	r.mu.Unlock()
}

// bind arms the first unused pending redirect matching command/args,
// called when the out-queue actually sends the owning command.
func (r *redirectRegistry) bind(command string, args []string) *Redirect {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rd := range r.items {
		if rd.state == RedirectPending && rd.matchesOwner(command, args) {
			rd.arm()
			return rd
		}
	}
	return nil
}

// feed offers an inbound message to the oldest active redirect that
// wants it; consulted by the receive pipeline before the dispatcher.
func (r *redirectRegistry) feed(m *Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rd := range r.items {
		if rd.state != RedirectActive {
			continue
		}
		if rd.feed(m) {
			if rd.state == RedirectDone || rd.state == RedirectError {
				r.items = append(r.items[:i], r.items[i+1:]...)
			}
			return true
		}
	}
	return false
}

func (r *redirectRegistry) sweepExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keep []*Redirect
	for _, rd := range r.items {
		if rd.expired(now) {
			rd.timeoutNow()
			continue
		}
		keep = append(keep, rd)
	}
	r.items = keep
}
