package ircore

import (
	"io"
	"testing"
)

func testCTCPServer(t *testing.T) *Server {
	t.Helper()
	core := NewCore()
	srv, err := core.AddServer(&ServerConfig{Name: "ctcp-test", Debug: io.Discard})
	if err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	srv.isConnected = true
	return srv
}

func TestDecodeCTCP(t *testing.T) {
	tests := []struct {
		name    string
		m       *Message
		want    *CTCPMessage
		wantNil bool
	}{
		{
			name: "version query",
			m:    &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01VERSION\x01"},
			want: &CTCPMessage{Command: CTCPVersion},
		},
		{
			name: "ping with argument",
			m:    &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01PING 12345\x01"},
			want: &CTCPMessage{Command: CTCPPing, Text: "12345"},
		},
		{
			name: "reply via NOTICE",
			m:    &Message{Command: NOTICE, Params: []string{"#chan"}, Trailing: "\x01PING 12345\x01"},
			want: &CTCPMessage{Command: CTCPPing, Text: "12345", Reply: true},
		},
		{name: "not framed", m: &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "hello"}, wantNil: true},
		{name: "multiple params", m: &Message{Command: PRIVMSG, Params: []string{"#chan", "extra"}, Trailing: "\x01PING\x01"}, wantNil: true},
		{name: "wrong command", m: &Message{Command: JOIN, Params: []string{"#chan"}, Trailing: "\x01PING\x01"}, wantNil: true},
		{name: "too short", m: &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01\x01"}, wantNil: true},
		{name: "lowercase tag invalid", m: &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01ping\x01"}, wantNil: true},
	}

	for _, tt := range tests {
		got := decodeCTCP(tt.m)
		if tt.wantNil {
			if got != nil {
				t.Errorf("%s: decodeCTCP = %+v, want nil", tt.name, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("%s: decodeCTCP returned nil, want %+v", tt.name, tt.want)
		}
		if got.Command != tt.want.Command || got.Text != tt.want.Text || got.Reply != tt.want.Reply {
			t.Errorf("%s: decodeCTCP = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestEncodeCTCPRaw(t *testing.T) {
	tests := []struct {
		cmd, text, want string
	}{
		{cmd: "PING", text: "123", want: "\x01PING 123\x01"},
		{cmd: "VERSION", text: "", want: "\x01VERSION\x01"},
		{cmd: "", text: "ignored", want: ""},
	}
	for _, tt := range tests {
		if got := encodeCTCPRaw(tt.cmd, tt.text); got != tt.want {
			t.Errorf("encodeCTCPRaw(%q, %q) = %q, want %q", tt.cmd, tt.text, got, tt.want)
		}
	}
}

func TestIsCTCPTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{tag: "PING", want: true},
		{tag: "VERSION2", want: true},
		{tag: "ping", want: false},
		{tag: "", want: false},
		{tag: "PING PONG", want: false},
	}
	for _, tt := range tests {
		if got := isCTCPTag(tt.tag); got != tt.want {
			t.Errorf("isCTCPTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestMessageIsCTCP(t *testing.T) {
	m := &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01VERSION\x01"}
	if !m.IsCTCP() {
		t.Errorf("expected a CTCP-framed PRIVMSG to report IsCTCP() == true")
	}

	plain := &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "hello"}
	if plain.IsCTCP() {
		t.Errorf("expected a plain PRIVMSG to report IsCTCP() == false")
	}
}

func TestCTCPRegistrySetAndClear(t *testing.T) {
	reg := newCTCPRegistry()

	called := false
	reg.Set("FOO", func(server *Server, ctcp CTCPMessage) { called = true })

	srv := testCTCPServer(t)
	reg.call(srv, &CTCPMessage{Source: &Source{Name: "nick"}, Command: "FOO"})
	if !called {
		t.Errorf("expected custom handler for FOO to be invoked")
	}

	reg.Clear("FOO")
	called = false
	reg.call(srv, &CTCPMessage{Source: &Source{Name: "nick"}, Command: "FOO"})
	if called {
		t.Errorf("expected cleared handler to no longer fire")
	}
}

func TestCTCPRegistryWildcard(t *testing.T) {
	reg := newCTCPRegistry()

	var seen []string
	reg.Set("*", func(server *Server, ctcp CTCPMessage) { seen = append(seen, ctcp.Command) })

	srv := testCTCPServer(t)
	reg.call(srv, &CTCPMessage{Source: &Source{Name: "nick"}, Command: CTCPVersion})

	if len(seen) != 1 || seen[0] != CTCPVersion {
		t.Errorf("expected wildcard handler to observe every CTCP command, got %v", seen)
	}
}

func TestCTCPRegistryRejectsInvalidTag(t *testing.T) {
	reg := newCTCPRegistry()
	reg.Set("not a tag", func(server *Server, ctcp CTCPMessage) {})
	if _, ok := reg.handlers["not a tag"]; ok {
		t.Errorf("expected Set to reject a non-CTCP-tag command string")
	}
}

func TestCTCPDefaultHandlersRegistered(t *testing.T) {
	reg := newCTCPRegistry()
	for _, tag := range []string{CTCPPing, CTCPPong, CTCPVersion, CTCPSource, CTCPTime} {
		if _, ok := reg.handlers[tag]; !ok {
			t.Errorf("expected default handler registered for %s", tag)
		}
	}
}
