package ircore

import (
	"bytes"
	"strings"
	"time"
)

const (
	eventSpace      byte = 0x20
	messagePrefix   byte = 0x3a // ':' introduces a source or a trailing parameter.
	maxWireLength        = 512  // default ISUPPORT LINELEN, includes CRLF.
	maxEventLength       = maxWireLength - 2
)

func cutCRFunc(r rune) bool {
	return r == '\r' || r == '\n'
}

// Message is the parsed form of one wire frame, see RFC1459 section 2.3.1
// and the IRCv3 message-tags extension:
//
//	message := ['@' tags SP] [':' prefix SP] command (SP params)* [SP ':' trailing] CRLF
type Message struct {
	Source        *Source
	Tags          Tags
	Command       string
	Params        []string
	Trailing      string
	EmptyTrailing bool

	// Sensitive marks a message whose payload must not be written to the
	// raw wire log (AUTHENTICATE, OPER): credentials travel base64-encoded
	// but otherwise unencrypted in the log stream.
	Sensitive bool

	// Timestamp is the server-time tag when present, else the time the
	// message was parsed.
	Timestamp time.Time
}

// ParseMessage parses a single line, excluding the terminating CRLF.
// Returns nil for malformed input.
func ParseMessage(raw string) (m *Message) {
	if raw = strings.TrimFunc(raw, cutCRFunc); len(raw) < 2 {
		return nil
	}

	i, j := 0, 0
	m = &Message{}

	if raw[0] == prefixTag {
		i = strings.IndexByte(raw, eventSpace)
		if i < 2 {
			return nil
		}

		m.Tags = ParseTags(raw[1:i])
		raw = raw[i+1:]
		i = 0
	}

	if len(raw) == 0 {
		return nil
	}

	if raw[0] == messagePrefix {
		i = strings.IndexByte(raw, eventSpace)
		if i < 2 {
			return nil
		}

		m.Source = ParseSource(raw[1:i])
		i++
	}

	j = i + strings.IndexByte(raw[i:], eventSpace)

	if j < i {
		m.Command = strings.ToUpper(raw[i:])
		m.finish()
		return m
	}

	m.Command = strings.ToUpper(raw[i:j])
	j++

	// A trailing parameter may directly follow the command ("PING :x").
	if j < len(raw) && raw[j] == messagePrefix {
		m.Trailing = raw[j+1:]
		if len(m.Trailing) == 0 {
			m.EmptyTrailing = true
		}
		m.finish()
		return m
	}

	k := bytes.Index([]byte(raw[j:]), []byte{eventSpace, messagePrefix})
	if k != -1 {
		k++
	}

	if k < 0 || raw[j+k-1] != eventSpace {
		if j < len(raw) {
			m.Params = strings.Split(raw[j:], string(eventSpace))
		}
		m.finish()
		return m
	}

	k += j

	if k > j {
		m.Params = strings.Split(raw[j:k-1], string(eventSpace))
	}

	m.Trailing = raw[k+1:]
	if len(m.Trailing) == 0 {
		m.EmptyTrailing = true
	}

	m.finish()
	return m
}

func (m *Message) finish() {
	if t, ok := m.Tags.Get("time"); ok {
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			m.Timestamp = ts.UTC()
			return
		}
	}

	m.Timestamp = time.Now().UTC()
}

// Len calculates the wire length of the message, including CRLF.
func (m *Message) Len() (length int) {
	length = 2

	if m.Tags != nil {
		length += m.Tags.Len() + 2 // '@' and the trailing space
	}
	if m.Source != nil {
		length += m.Source.Len() + 2
	}

	length += len(m.Command)

	if len(m.Params) > 0 {
		length += len(m.Params)
		for i := 0; i < len(m.Params); i++ {
			length += len(m.Params[i])
		}
	}

	if len(m.Trailing) > 0 || m.EmptyTrailing {
		length += len(m.Trailing) + 2
	}

	return length
}

// Bytes renders the wire frame, truncated to maxEventLength (plus tag
// budget) per RFC2812 section 2.3, with embedded CR/LF stripped.
func (m *Message) Bytes() []byte {
	buf := new(bytes.Buffer)

	if m.Tags != nil {
		buf.WriteString(m.Tags.String())
	}

	if m.Source != nil {
		buf.WriteByte(messagePrefix)
		buf.WriteString(m.Source.String())
		buf.WriteByte(eventSpace)
	}

	buf.WriteString(m.Command)

	if len(m.Params) > 0 {
		buf.WriteByte(eventSpace)
		buf.WriteString(strings.Join(m.Params, string(eventSpace)))
	}

	if len(m.Trailing) > 0 || m.EmptyTrailing {
		buf.WriteByte(eventSpace)
		buf.WriteByte(messagePrefix)
		buf.WriteString(m.Trailing)
	}

	if buf.Len() > maxEventLength {
		if m.Tags != nil {
			buf.Truncate(maxEventLength + maxTagLength + 1)
		} else {
			buf.Truncate(maxEventLength)
		}
	}

	out := buf.Bytes()
	for i := 0; i < len(out); i++ {
		if out[i] == 0x0A || out[i] == 0x0D {
			out = append(out[:i], out[i+1:]...)
			i--
		}
	}

	return out
}

// String renders the wire frame without CRLF.
func (m *Message) String() string {
	return string(m.Bytes())
}

// IsCTCP reports whether this is a PRIVMSG/NOTICE wrapping a CTCP payload.
func (m *Message) IsCTCP() bool {
	return decodeCTCP(m) != nil
}

// Clone returns a deep-enough copy for mutation during batch replay, which
// rewrites tags (stripping "batch") and re-dispatches the line.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	c := &Message{
		Command:       m.Command,
		Trailing:      m.Trailing,
		EmptyTrailing: m.EmptyTrailing,
		Sensitive:     m.Sensitive,
		Timestamp:     m.Timestamp,
		Tags:          m.Tags.Clone(),
	}
	if m.Source != nil {
		src := *m.Source
		c.Source = &src
	}
	c.Params = append([]string(nil), m.Params...)

	return c
}
