package ircore

import (
	"strings"
	"sync"
	"time"
)

// batchWatchdog is how long an unclosed batch is kept before being
// force-freed.
const batchWatchdog = time.Hour

// Batch is one open or closing IRCv3 BATCH group. A Server owns its
// Batches exclusively.
type Batch struct {
	Ref       string
	ParentRef string
	Type      string
	Params    []string
	Tags      Tags

	Start time.Time

	// lines accumulates the parsed message for every line tagged
	// batch=Ref while the batch is open, alongside the tags that arrived
	// with each line (minus "batch") so they can be re-injected on replay.
	lines []batchLine

	EndReceived        bool
	MessagesProcessed  bool
}

type batchLine struct {
	tags Tags
	raw  *Message
}

// batchRegistry is the per-server collection of open batches, keyed by
// reference.
type batchRegistry struct {
	mu      sync.Mutex
	byRef   map[string]*Batch
	// order preserves arrival order of BATCH +ref so S3/S4-style ordering
	// ("process parent before child, in arrival order") is stable.
	order []string
}

func newBatchRegistry() *batchRegistry {
	return &batchRegistry{byRef: make(map[string]*Batch)}
}

func (r *batchRegistry) open(ref, parentRef, typ string, params []string, tags Tags) *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &Batch{Ref: ref, ParentRef: parentRef, Type: typ, Params: params, Tags: tags, Start: time.Now()}
	r.byRef[ref] = b
	r.order = append(r.order, ref)
	return b
}

func (r *batchRegistry) get(ref string) *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byRef[ref]
}

// append records an inbound line tagged batch=ref while the batch is
// still open, returning false if no such batch is open.
func (r *batchRegistry) append(ref string, m *Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byRef[ref]
	if !ok {
		return false
	}

	lineTags := m.Tags.Clone()
	if lineTags != nil {
		lineTags.Remove("batch")
	}

	b.lines = append(b.lines, batchLine{tags: lineTags, raw: m})
	return true
}

func (r *batchRegistry) close(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byRef[ref]; ok {
		b.EndReceived = true
	}
}

func (r *batchRegistry) remove(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byRef, ref)
	for i, o := range r.order {
		if o == ref {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// readyToProcess returns, in arrival order, every terminated batch whose
// parent (if any) has already been fully removed (i.e. already
// processed) — enforcing parent-before-child ordering.
func (r *batchRegistry) readyToProcess() []*Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*Batch
	for _, ref := range r.order {
		b := r.byRef[ref]
		if b == nil || !b.EndReceived || b.MessagesProcessed {
			continue
		}
		if b.ParentRef != "" {
			if parent, ok := r.byRef[b.ParentRef]; ok && !parent.MessagesProcessed {
				continue
			}
		}
		ready = append(ready, b)
	}

	return ready
}

// sweepExpired frees any batch whose BATCH -ref was never received
// within batchWatchdog.
func (r *batchRegistry) sweepExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ref, b := range r.byRef {
		if now.Sub(b.Start) > batchWatchdog {
			delete(r.byRef, ref)
			for i, o := range r.order {
				if o == ref {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		}
	}
}

// BatchModifier is called with the Trailing text of each accumulated
// line of a batch before it is replayed. Returning nil drops the whole
// batch; any other return value lets the batch replay unchanged, since
// the returned lines are not used. A nil BatchModifier replays every
// batch.
type BatchModifier func(server *Server, batchType string, params []string, lines []string) []string

// processBatches drains every ready batch, replaying its lines through
// dispatch as though freshly received, and applies multiline
// reconstruction for draft/multiline batches.
func (s *Server) processBatches() {
	// Processing a parent can make its children ready, so rescan until
	// nothing is left to process.
	for {
		ready := s.batches.readyToProcess()
		if len(ready) == 0 {
			return
		}
		for _, b := range ready {
			s.processOneBatch(b)
			b.MessagesProcessed = true
			s.batches.remove(b.Ref)
		}
	}
}

func (s *Server) processOneBatch(b *Batch) {
	if s.BatchModifier != nil {
		raw := make([]string, len(b.lines))
		for i, l := range b.lines {
			raw[i] = l.raw.Trailing
		}
		rewritten := s.BatchModifier(s, b.Type, b.Params, raw)
		if rewritten == nil {
			return
		}
	}

	if b.Type == "draft/multiline" && len(b.Params) > 0 {
		s.replayMultiline(b)
		return
	}

	for _, l := range b.lines {
		msg := l.raw.Clone()
		merged := b.Tags.Clone()
		if merged == nil {
			merged = Tags{}
		}
		if l.tags != nil {
			for k, v := range l.tags {
				merged[k] = v
			}
		}
		msg.Tags = merged
		s.dispatch(msg)
	}
}

// replayMultiline concatenates consecutive PRIVMSG/NOTICE fragments to
// the same target into one synthesized message, joining with LF unless
// the fragment carries draft/multiline-concat.
func (s *Server) replayMultiline(b *Batch) {
	target := b.Params[0]

	var text strings.Builder
	var first *Message
	var command string

	for _, l := range b.lines {
		if l.raw.Command != PRIVMSG && l.raw.Command != NOTICE {
			continue
		}
		if first == nil {
			first = l.raw
			command = l.raw.Command
		}

		if _, concat := l.tags.Get("draft/multiline-concat"); concat && text.Len() > 0 {
			// no separator
		} else if text.Len() > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(l.raw.Trailing)
	}

	if first == nil {
		return
	}

	synth := &Message{
		Source:   first.Source,
		Command:  command,
		Params:   []string{target},
		Trailing: text.String(),
		Tags:     b.Tags.Clone(),
	}
	if synth.Tags == nil {
		synth.Tags = Tags{}
	}
	synth.Tags.Set("batch", "")
	synth.Tags.Remove("batch")

	s.dispatch(synth)
}
