package ircore

import "testing"

// TestBatchNetJoinReplaysInOrder grounds the netjoin scenario: two JOINs
// tagged into an open batch must stay invisible to channel state until
// BATCH -ref closes it, then land in arrival order.
func TestBatchNetJoinReplaysInOrder(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "batch-test"})

	srv.receive(&Message{Command: BATCH, Params: []string{"+1", "netjoin", "srv"}})
	srv.receive(&Message{
		Command: JOIN, Params: []string{"#c"},
		Source: &Source{Name: "a", Ident: "u", Host: "h"},
		Tags:   Tags{"batch": "1"},
	})
	srv.receive(&Message{
		Command: JOIN, Params: []string{"#c"},
		Source: &Source{Name: "b", Ident: "u", Host: "h"},
		Tags:   Tags{"batch": "1"},
	})

	if ch := srv.lookupChannel("#c"); ch != nil {
		t.Fatalf("expected #c to not exist before the netjoin batch closed, got %v", ch)
	}

	srv.receive(&Message{Command: BATCH, Params: []string{"-1"}})

	ch := srv.lookupChannel("#c")
	if ch == nil {
		t.Fatalf("expected #c to be created once the netjoin batch closed")
	}
	if ch.lookupMembership(srv.casemap(), "a") == nil {
		t.Errorf("expected a to be a tracked member of #c")
	}
	if ch.lookupMembership(srv.casemap(), "b") == nil {
		t.Errorf("expected b to be a tracked member of #c")
	}
}

// TestBatchMultilinePRIVMSGConcatenates grounds the draft/multiline
// replay: a concat-tagged fragment joins without a separator, everything
// else joins with LF.
func TestBatchMultilinePRIVMSGConcatenates(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "batch-test"})

	var got *Message
	srv.OnSignal = func(s *Server, direction string, m *Message) {
		if m.Command == PRIVMSG {
			got = m
		}
	}

	srv.receive(&Message{Command: BATCH, Params: []string{"+x", "draft/multiline", "#c"}})
	srv.receive(&Message{Command: PRIVMSG, Params: []string{"#c"}, Trailing: "line1", Source: &Source{Name: "a"}, Tags: Tags{"batch": "x"}})
	srv.receive(&Message{Command: PRIVMSG, Params: []string{"#c"}, Trailing: "_continued", Source: &Source{Name: "a"}, Tags: Tags{"batch": "x", "draft/multiline-concat": ""}})
	srv.receive(&Message{Command: PRIVMSG, Params: []string{"#c"}, Trailing: "line2", Source: &Source{Name: "a"}, Tags: Tags{"batch": "x"}})
	srv.receive(&Message{Command: BATCH, Params: []string{"-x"}})

	if got == nil {
		t.Fatalf("expected the closed multiline batch to replay a synthesized PRIVMSG")
	}
	if want := "line1_continued\nline2"; got.Trailing != want {
		t.Errorf("replayMultiline: got %q, want %q", got.Trailing, want)
	}
	if len(got.Params) == 0 || got.Params[0] != "#c" {
		t.Errorf("replayMultiline: expected target #c, got params %v", got.Params)
	}
}

// TestBatchParentBeforeChildOrdering grounds the order guarantee in
// readyToProcess: a nested batch's lines aren't replayed until its
// parent is also closed.
func TestBatchParentBeforeChildOrdering(t *testing.T) {
	reg := newBatchRegistry()

	parent := reg.open("p", "", "netsplit", nil, nil)
	child := reg.open("c", "p", "netjoin", nil, nil)

	reg.close("c")
	if ready := reg.readyToProcess(); len(ready) != 0 {
		t.Fatalf("readyToProcess: expected the child to wait on its open parent, got %v", ready)
	}

	reg.close("p")
	ready := reg.readyToProcess()
	if len(ready) != 1 || ready[0] != parent {
		t.Fatalf("readyToProcess: expected only the parent ready first, got %v", ready)
	}

	parent.MessagesProcessed = true
	reg.remove(parent.Ref)

	ready = reg.readyToProcess()
	if len(ready) != 1 || ready[0] != child {
		t.Fatalf("readyToProcess: expected the child ready once its parent was processed, got %v", ready)
	}
}

func TestBatchRegistryAppendRequiresOpenBatch(t *testing.T) {
	reg := newBatchRegistry()

	if reg.append("nope", &Message{Command: PRIVMSG}) {
		t.Errorf("append: expected false for a ref with no open batch")
	}

	reg.open("1", "", "netjoin", nil, nil)
	if !reg.append("1", &Message{Command: PRIVMSG, Tags: Tags{"batch": "1"}}) {
		t.Fatalf("append: expected true for a tracked open batch")
	}

	b := reg.get("1")
	if len(b.lines) != 1 {
		t.Fatalf("expected 1 accumulated line, got %d", len(b.lines))
	}
	if _, ok := b.lines[0].tags.Get("batch"); ok {
		t.Errorf("expected the batch tag to be stripped from the stored line tags")
	}
}
