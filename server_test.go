package ircore

import (
	"io"
	"strconv"
	"testing"
)

func testServer(t *testing.T, cfg *ServerConfig) *Server {
	t.Helper()
	if cfg.Debug == nil {
		cfg.Debug = io.Discard
	}
	core := NewCore()
	srv, err := core.AddServer(cfg)
	if err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	return srv
}

func TestServerNameAndConfig(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "freenode"})
	if srv.Name() != "freenode" {
		t.Errorf("Name() = %q, want freenode", srv.Name())
	}
	if srv.Config().Name != "freenode" {
		t.Errorf("Config().Name = %q, want freenode", srv.Config().Name)
	}
}

func TestServerISupportAndDerivedState(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})

	if got := srv.ChanTypes(); got != defaultChanTypes {
		t.Errorf("ChanTypes() before 005 = %q, want default %q", got, defaultChanTypes)
	}

	srv.setISupport("CHANTYPES", "#&!")
	if got := srv.ChanTypes(); got != "#&!" {
		t.Errorf("ChanTypes() after 005 = %q, want #&!", got)
	}

	srv.setISupport("CASEMAPPING", "ascii")
	if srv.casemap() != CaseMappingASCII {
		t.Errorf("casemap() after CASEMAPPING=ascii = %v, want CaseMappingASCII", srv.casemap())
	}
	if srv.channels.cm != CaseMappingASCII {
		t.Errorf("expected the channel registry's casemapping to track ISUPPORT updates")
	}

	srv.setISupport("PREFIX", "(ov)@+")
	pm := srv.PrefixMap()
	if pm.CharFor('o') != '@' || pm.CharFor('v') != '+' {
		t.Errorf("PrefixMap() after PREFIX update = %+v", pm)
	}

	if v, ok := srv.ISupport("CHANTYPES"); !ok || v != "#&!" {
		t.Errorf("ISupport(\"CHANTYPES\") = (%q, %v), want (#&!, true)", v, ok)
	}
	if _, ok := srv.ISupport("NOSUCHKEY"); ok {
		t.Errorf("ISupport: expected an unknown key to report ok=false")
	}
}

func TestServerNickRotation(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test", Nicks: []string{"prim", "alt1", "alt2"}})

	if got := srv.nextNick(); got != "prim" {
		t.Fatalf("nextNick() = %q, want prim", got)
	}
	if got := srv.CurrentNick(); got != "prim" {
		t.Errorf("CurrentNick() = %q, want prim", got)
	}

	next, ok := srv.rotateNick()
	if !ok || next != "alt1" {
		t.Fatalf("rotateNick() = (%q, %v), want (alt1, true)", next, ok)
	}
	next, ok = srv.rotateNick()
	if !ok || next != "alt2" {
		t.Fatalf("rotateNick() = (%q, %v), want (alt2, true)", next, ok)
	}

	// Once the list is exhausted, pad the last-tried nick with underscores
	// up to 9 characters.
	for _, want := range []string{"alt2_", "alt2__", "alt2___", "alt2____", "alt2_____"} {
		next, ok = srv.rotateNick()
		if !ok || next != want {
			t.Fatalf("rotateNick() = (%q, %v), want (%q, true)", next, ok, want)
		}
	}

	// At 9 characters, fall back to digit suffixes 1..99 against the base
	// nick instead of growing further.
	next, ok = srv.rotateNick()
	if !ok || next != "alt21" {
		t.Fatalf("rotateNick() first digit fallback = (%q, %v), want (alt21, true)", next, ok)
	}
	next, ok = srv.rotateNick()
	if !ok || next != "alt22" {
		t.Fatalf("rotateNick() second digit fallback = (%q, %v), want (alt22, true)", next, ok)
	}

	for i := 3; i <= 99; i++ {
		next, ok = srv.rotateNick()
		if !ok {
			t.Fatalf("rotateNick() exhausted early at digit %d", i)
		}
		if want := "alt2" + strconv.Itoa(i); next != want {
			t.Fatalf("rotateNick() at digit %d = %q, want %q", i, next, want)
		}
	}

	if _, ok = srv.rotateNick(); ok {
		t.Fatalf("rotateNick() after exhausting digits 1..99 = ok, want exhausted")
	}
}

func TestServerNextNickFallsBackToUsername(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test", Username: "fallback"})
	if got := srv.nextNick(); got != "fallback" {
		t.Errorf("nextNick() with no configured Nicks = %q, want fallback (Username)", got)
	}
}

func TestServerHasCapability(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})
	if srv.HasCapability("sasl") {
		t.Errorf("HasCapability: expected false before any ACK")
	}
	srv.caps.enabled["sasl"] = true
	if !srv.HasCapability("sasl") {
		t.Errorf("HasCapability: expected true once enabled")
	}
}

func TestServerTrackAndLookupNick(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})
	srv.trackNick(&Nick{Name: "Alice"})

	if srv.lookupNick("alice") == nil {
		t.Errorf("lookupNick: expected a case-folded lookup of 'alice' to find 'Alice'")
	}
	if srv.lookupNick("bob") != nil {
		t.Errorf("lookupNick: expected an unknown nick to be nil")
	}
}

func TestServerResetRuntimeState(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})
	srv.setISupport("CASEMAPPING", "ascii")
	srv.caps.enabled["sasl"] = true
	srv.channels.create("#chan", ChannelTypeChannel, "", "test")

	srv.resetRuntimeState()

	if srv.casemap() != CaseMappingRFC1459 {
		t.Errorf("resetRuntimeState: expected casemapping to reset to the RFC1459 default")
	}
	if srv.HasCapability("sasl") {
		t.Errorf("resetRuntimeState: expected negotiated capabilities to be cleared")
	}
	if len(srv.Channels()) != 0 {
		t.Errorf("resetRuntimeState: expected channel buffers to clear when Autorejoin is false")
	}
}

func TestServerResetRuntimeStateKeepsChannelsOnAutorejoin(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test", Autorejoin: true})
	srv.channels.create("#chan", ChannelTypeChannel, "", "test")

	srv.resetRuntimeState()

	if len(srv.Channels()) != 1 {
		t.Errorf("resetRuntimeState: expected channel buffers to survive when Autorejoin is true, got %d", len(srv.Channels()))
	}
}

func TestServerChannelsAndLookupChannel(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})
	srv.channels.create("#a", ChannelTypeChannel, "", "test")
	srv.channels.create("#b", ChannelTypeChannel, "", "test")

	if len(srv.Channels()) != 2 {
		t.Fatalf("Channels() = %d, want 2", len(srv.Channels()))
	}
	if srv.lookupChannel("#A") == nil {
		t.Errorf("lookupChannel: expected a case-insensitive hit for #A")
	}
}

func TestServerEmitLifecycleAndSignalNilSafe(t *testing.T) {
	srv := testServer(t, &ServerConfig{Name: "test"})
	srv.emitLifecycle(CONNECTED)
	srv.emitSignal("irc_out", &Message{Command: PING})
}
