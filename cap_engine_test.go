package ircore

import (
	"io"
	"testing"
)

func testCapServer(t *testing.T) *Server {
	t.Helper()
	core := NewCore()
	srv, err := core.AddServer(&ServerConfig{Name: "cap-test", Debug: io.Discard})
	if err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	return srv
}

func TestParseCapTokens(t *testing.T) {
	got := parseCapTokens("sasl multi-prefix=bar account-notify")
	want := map[string]string{"sasl": "", "multi-prefix": "bar", "account-notify": ""}
	if len(got) != len(want) {
		t.Fatalf("parseCapTokens: got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseCapTokens[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestWantedCapabilities(t *testing.T) {
	available := map[string]string{"sasl": "", "account-notify": "", "unsupported-thing": ""}
	got := wantedCapabilities(available, []string{"draft/custom"})

	found := map[string]bool{}
	for _, c := range got {
		found[c] = true
	}
	if !found["sasl"] || !found["account-notify"] {
		t.Errorf("wantedCapabilities: expected supported+available caps present, got %v", got)
	}
	if found["unsupported-thing"] {
		t.Errorf("wantedCapabilities: should not request a cap this build doesn't support")
	}
	if found["draft/custom"] {
		t.Errorf("wantedCapabilities: should not request an extra cap the server didn't advertise")
	}
}

func TestHandleCAPLSSingleLine(t *testing.T) {
	srv := testCapServer(t)
	m := &Message{Command: CAP, Params: []string{"*", "LS"}, Trailing: "sasl account-notify"}

	handleCAP(srv, m)

	if !srv.caps.lsDone {
		t.Errorf("expected a single-line LS burst to mark lsDone")
	}
	if len(srv.caps.pending) == 0 {
		t.Errorf("expected requested caps to be tracked as pending")
	}
}

func TestHandleCAPLSMultilineContinuation(t *testing.T) {
	srv := testCapServer(t)
	m := &Message{Command: CAP, Params: []string{"*", "LS", "*"}, Trailing: "sasl"}

	handleCAP(srv, m)

	if srv.caps.lsDone {
		t.Errorf("expected a '*' continuation LS line to not mark lsDone")
	}
	if _, ok := srv.caps.available["sasl"]; !ok {
		t.Errorf("expected the continuation's tokens to still be recorded as available")
	}
}

func TestHandleCAPAckAndMaybeEndCap(t *testing.T) {
	srv := testCapServer(t)
	srv.caps.available["account-notify"] = ""
	srv.caps.pending = []string{"account-notify"}

	ack := &Message{Command: CAP, Params: []string{"*", "ACK"}, Trailing: "account-notify"}
	handleCAP(srv, ack)

	if !srv.caps.isEnabled("account-notify") {
		t.Errorf("expected ACK to mark the capability enabled")
	}
	if len(srv.caps.pending) != 0 {
		t.Errorf("expected ACK to clear the capability from pending, got %v", srv.caps.pending)
	}
}

func TestHandleCAPNakClearsPending(t *testing.T) {
	srv := testCapServer(t)
	srv.caps.pending = []string{"sasl"}

	nak := &Message{Command: CAP, Params: []string{"*", "NAK"}, Trailing: "sasl"}
	handleCAP(srv, nak)

	if srv.caps.isEnabled("sasl") {
		t.Errorf("expected NAK to leave the capability disabled")
	}
	if len(srv.caps.pending) != 0 {
		t.Errorf("expected NAK to clear the capability from pending, got %v", srv.caps.pending)
	}
}

func TestHandleCAPDel(t *testing.T) {
	srv := testCapServer(t)
	srv.caps.available["batch"] = ""
	srv.caps.enabled["batch"] = true

	del := &Message{Command: CAP, Params: []string{"*", "DEL"}, Trailing: "batch"}
	handleCAP(srv, del)

	if srv.caps.isEnabled("batch") {
		t.Errorf("expected DEL to disable the capability")
	}
	if _, ok := srv.caps.available["batch"]; ok {
		t.Errorf("expected DEL to remove the capability from available")
	}
}

func TestHandleCAPNewRequestsFreshCapabilities(t *testing.T) {
	srv := testCapServer(t)

	newCap := &Message{Command: CAP, Params: []string{"*", "NEW"}, Trailing: "away-notify"}
	handleCAP(srv, newCap)

	if _, ok := srv.caps.available["away-notify"]; !ok {
		t.Errorf("expected NEW to record the capability as available")
	}

	found := false
	for _, p := range srv.caps.pending {
		if p == "away-notify" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected NEW to request the newly advertised, supported capability")
	}
}

func TestHandleCHGHOST(t *testing.T) {
	srv := testCapServer(t)
	ch := srv.channels.create("#chan", ChannelTypeChannel, "", srv.Name())
	n := &Nick{Name: "alice", Ident: "old", Host: "old.host"}
	ch.addMembership(srv.casemap(), n, "")

	m := &Message{Command: "CHGHOST", Source: &Source{Name: "alice"}, Params: []string{"newident", "new.host"}}
	handleCHGHOST(srv, m)

	if n.Ident != "newident" || n.Host != "new.host" {
		t.Errorf("handleCHGHOST: got Ident=%q Host=%q, want newident/new.host", n.Ident, n.Host)
	}
}

func TestHandleAWAY(t *testing.T) {
	srv := testCapServer(t)
	ch := srv.channels.create("#chan", ChannelTypeChannel, "", srv.Name())
	n := &Nick{Name: "bob"}
	ch.addMembership(srv.casemap(), n, "")

	handleAWAY(srv, &Message{Command: AWAY, Source: &Source{Name: "bob"}, Trailing: "gone fishing"})
	if !n.Away || n.AwayMessage != "gone fishing" {
		t.Fatalf("handleAWAY: got Away=%v AwayMessage=%q, want true/gone fishing", n.Away, n.AwayMessage)
	}

	handleAWAY(srv, &Message{Command: AWAY, Source: &Source{Name: "bob"}, EmptyTrailing: true})
	if n.Away {
		t.Errorf("handleAWAY: expected empty-trailing AWAY to clear away status")
	}
}

func TestHandleACCOUNT(t *testing.T) {
	srv := testCapServer(t)
	ch := srv.channels.create("#chan", ChannelTypeChannel, "", srv.Name())
	n := &Nick{Name: "carol"}
	ch.addMembership(srv.casemap(), n, "")

	handleACCOUNT(srv, &Message{Command: "ACCOUNT", Source: &Source{Name: "carol"}, Params: []string{"carolaccount"}})
	if n.Account != "carolaccount" {
		t.Fatalf("handleACCOUNT: got %q, want carolaccount", n.Account)
	}

	handleACCOUNT(srv, &Message{Command: "ACCOUNT", Source: &Source{Name: "carol"}, Params: []string{"*"}})
	if n.Account != "" {
		t.Errorf("handleACCOUNT: expected '*' to clear the account, got %q", n.Account)
	}
}

func TestApplyMessageAccountTag(t *testing.T) {
	srv := testCapServer(t)
	ch := srv.channels.create("#chan", ChannelTypeChannel, "", srv.Name())
	n := &Nick{Name: "dave"}
	ch.addMembership(srv.casemap(), n, "")

	m := &Message{Command: PRIVMSG, Source: &Source{Name: "dave"}, Tags: Tags{"account": "daveacct"}}
	applyMessageAccountTag(srv, m)

	if n.Account != "daveacct" {
		t.Errorf("applyMessageAccountTag: got %q, want daveacct", n.Account)
	}
}
