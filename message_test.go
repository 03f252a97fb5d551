package ircore

import (
	"reflect"
	"testing"
	"unicode/utf8"
)

var testsParseMessage = []struct {
	in   string
	want string
}{
	{in: "", want: ""},
	{in: ":host.domain.com TEST", want: ":host.domain.com TEST"},
	{in: ":host.domain.com TEST\r\n", want: ":host.domain.com TEST"},
	{in: ":host.domain.com TEST arg1 arg2", want: ":host.domain.com TEST arg1 arg2"},
	{in: ":host.domain.com TEST :", want: ":host.domain.com TEST :"},
	{in: ":host.domain.com TEST ::", want: ":host.domain.com TEST ::"},
	{in: ":host.domain.com TEST :test1", want: ":host.domain.com TEST :test1"},
	{in: ":host.domain.com TEST :test:test", want: ":host.domain.com TEST :test:test"},
	{in: ":host.domain.com TEST :test1 :test", want: ":host.domain.com TEST :test1 :test"},
	{in: ":host.domain.com TEST :test1 test2", want: ":host.domain.com TEST :test1 test2"},
	{in: ":host.domain.com TEST arg1 arg2 :test1", want: ":host.domain.com TEST arg1 arg2 :test1"},
	{in: ":nick!user@host TEST :test1", want: ":nick!user@host TEST :test1"},
	{in: ":nick!user@host TEST :test1 test2", want: ":nick!user@host TEST :test1 test2"},
	{in: "@aaa=bbb :nick!user@host TEST :test1", want: "@aaa=bbb :nick!user@host TEST :test1"},
}

func TestParseMessage(t *testing.T) {
	for _, tt := range testsParseMessage {
		got := ParseMessage(tt.in)

		if got == nil && tt.want == "" {
			continue
		}
		if got == nil {
			t.Fatalf("ParseMessage(%q): got nil, want %q", tt.in, tt.want)
		}

		if got.String() != tt.want {
			t.Fatalf("ParseMessage(%q).String() = %q, want %q", tt.in, got.String(), tt.want)
		}
		// Len counts the closing CRLF, which String omits.
		if got.Len() != len(tt.want)+2 {
			t.Fatalf("ParseMessage(%q).Len() = %d, want %d", tt.in, got.Len(), len(tt.want)+2)
		}
	}
}

func FuzzParseMessage(f *testing.F) {
	for _, tc := range testsParseMessage {
		f.Add(tc.in)
	}

	f.Fuzz(func(t *testing.T, orig string) {
		got := ParseMessage(orig)
		if got == nil {
			return
		}

		_ = got.Len()
		_ = got.IsCTCP()

		if utf8.ValidString(orig) {
			if !utf8.ValidString(got.Command) {
				t.Errorf("produced invalid UTF-8 command %q", got.Command)
			}
			if !utf8.Valid(got.Bytes()) {
				t.Errorf("produced invalid UTF-8 bytes %q", got.Bytes())
			}
		}
	})
}

func TestMessageClone(t *testing.T) {
	var nilMsg *Message
	if c := nilMsg.Clone(); c != nil {
		t.Fatalf("Message.Clone: returned non-nil on nil message: %#v", c)
	}

	m := ParseMessage("@aaa=bbb :nick!user@host PRIVMSG #chan arg1 :trailing text")
	clone := m.Clone()

	if !reflect.DeepEqual(m, clone) {
		t.Fatalf("Message.Clone: want %#v, got %#v", m, clone)
	}

	clone.Params[0] = "#other"
	if m.Params[0] == "#other" {
		t.Fatalf("Message.Clone: mutating clone.Params mutated the original")
	}
}

func TestMessageSensitiveCloned(t *testing.T) {
	m := &Message{Command: AUTHENTICATE, Params: []string{"+"}, Sensitive: true}
	clone := m.Clone()
	if !clone.Sensitive {
		t.Fatalf("Message.Clone: Sensitive flag was dropped")
	}
}

func TestMessageBytesTrailing(t *testing.T) {
	m := &Message{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "hello world"}
	if got, want := m.String(), "PRIVMSG #chan :hello world"; got != want {
		t.Fatalf("Message.String() = %q, want %q", got, want)
	}

	empty := &Message{Command: PRIVMSG, Params: []string{"#chan"}, EmptyTrailing: true}
	if got, want := empty.String(), "PRIVMSG #chan :"; got != want {
		t.Fatalf("Message.String() with EmptyTrailing = %q, want %q", got, want)
	}
}

func TestMessageLenMatchesBytes(t *testing.T) {
	m := &Message{Command: JOIN, Params: []string{"#a,#b"}}
	if got, want := m.Len(), len(m.Bytes())+2; got != want {
		t.Fatalf("Message.Len() = %d, want %d", got, want)
	}
}
