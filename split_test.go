package ircore

import (
	"io"
	"testing"
)

func testSplitServer(t *testing.T) *Server {
	t.Helper()
	core := NewCore()
	srv, err := core.AddServer(&ServerConfig{Name: "split-test", Debug: io.Discard})
	if err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	return srv
}

func TestSplitTextCommand(t *testing.T) {
	const target = "#foo"
	msg := func(text string) *Message {
		return &Message{Command: PRIVMSG, Params: []string{target}, Trailing: text}
	}

	base := &Message{Command: PRIVMSG, Params: []string{target}}
	off := base.Len() + len(" :")

	tests := []struct {
		m       *Message
		maxLen  int
		results []string
	}{
		{msg("foo bar baz"), 4, []string{"foo ", "bar ", "baz"}},
		{msg("1234567890"), 5, []string{"12345", "67890"}},
		{msg("unsplitted"), 10, []string{"unsplitted"}},
		{msg("foobar"), 0, []string{"foobar"}},
	}

	for _, tt := range tests {
		out := splitTextCommand(tt.m, tt.maxLen+off)
		if len(out) != len(tt.results) {
			t.Fatalf("splitTextCommand(%q): got %d pieces, want %d (%v)", tt.m.Trailing, len(out), len(tt.results), out)
		}
		for i, want := range tt.results {
			if out[i].Trailing != want {
				t.Errorf("splitTextCommand(%q)[%d] = %q, want %q", tt.m.Trailing, i, out[i].Trailing, want)
			}
		}
	}
}

func TestSplitTextCommandPreservesSensitive(t *testing.T) {
	m := &Message{Command: PRIVMSG, Params: []string{"#foo"}, Trailing: "a long message that must split across lines", Sensitive: true}
	out := splitTextCommand(m, 30)
	if len(out) < 2 {
		t.Fatalf("expected the message to split into multiple pieces, got %d", len(out))
	}
	for i, piece := range out {
		if !piece.Sensitive {
			t.Errorf("piece %d lost Sensitive across split", i)
		}
	}
}

func TestSplitJOIN(t *testing.T) {
	m := &Message{Command: JOIN, Params: []string{"#a,#b,#c", "k1,,k3"}}
	out := splitJOIN(m, 1000)
	if len(out) != 1 {
		t.Fatalf("expected a single JOIN line to fit unsplit, got %d: %v", len(out), out)
	}
	if out[0].Params[0] != "#a,#b,#c" || out[0].Params[1] != "k1,,k3" {
		t.Fatalf("splitJOIN rearranged channels/keys: %+v", out[0])
	}

	small := m.Len() - 5
	split := splitJOIN(m, small)
	if len(split) < 2 {
		t.Fatalf("expected JOIN to split across multiple lines at maxLen=%d, got %d", small, len(split))
	}
	for _, piece := range split {
		channels := piece.Params[0]
		if len(piece.Params) > 1 {
			keys := piece.Params[1]
			if countCommas(channels) != countCommas(keys) {
				t.Errorf("splitJOIN: channel/key pair count mismatch in piece %+v", piece)
			}
		}
	}
}

func countCommas(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			n++
		}
	}
	return n
}

func TestSplitCSVTargets(t *testing.T) {
	m := &Message{Command: WHO, Params: []string{"nick1,nick2,nick3"}}

	whole := splitCSVTargets(m, 1000)
	if len(whole) != 1 {
		t.Fatalf("expected targets to fit on one line, got %d", len(whole))
	}

	small := m.Len() - 5
	split := splitCSVTargets(m, small)
	if len(split) < 2 {
		t.Fatalf("expected targets to split at maxLen=%d, got %d", small, len(split))
	}

	var seen []string
	for _, piece := range split {
		seen = append(seen, piece.Params[len(piece.Params)-1])
	}
	joined := ""
	for i, s := range seen {
		if i > 0 {
			joined += ","
		}
		joined += s
	}
	if joined != "nick1,nick2,nick3" {
		t.Fatalf("splitCSVTargets reordered or dropped targets: %q", joined)
	}
}

func TestSplitMessageNoRegisteredSplitter(t *testing.T) {
	srv := testSplitServer(t)
	big := &Message{Command: "UNKNOWNCMD", Trailing: string(make([]byte, 600))}
	out := splitMessage(srv, big)
	if len(out) != 1 {
		t.Fatalf("expected commands with no splitFunc to pass through unsplit, got %d pieces", len(out))
	}
}

func TestSplitMessageUnderLimit(t *testing.T) {
	srv := testSplitServer(t)
	m := &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "short"}
	out := splitMessage(srv, m)
	if len(out) != 1 || out[0] != m {
		t.Fatalf("expected an under-limit message to pass through unchanged, got %v", out)
	}
}
