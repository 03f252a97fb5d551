package ircore

import (
	"bytes"
	"strings"
)

const (
	prefixIdent byte = 0x21 // "!" -- separates nick from ident.
	prefixHost  byte = 0x40 // "@" -- separates ident from host.
)

// Source represents the origin of a Message, see RFC 1459 section 2.3.1:
//
//	<prefix> ::= <servername> | <nick> [ '!' <user> ] [ '@' <host> ]
type Source struct {
	// Name is the nickname, server name, or service name.
	Name string
	// Ident is commonly known as the "user" or "ident".
	Ident string
	// Host is the hostname or IP address the server has on file for this
	// source. Networks regularly spoof/cloak this for privacy, so it should
	// not be treated as authoritative for anything security sensitive.
	Host string
}

// ParseSource parses the prefix portion of a wire message (without the
// leading ':').
func ParseSource(raw string) *Source {
	src := &Source{}

	ident := strings.IndexByte(raw, prefixIdent)
	host := strings.IndexByte(raw, prefixHost)

	switch {
	case ident > 0 && host > ident:
		src.Name = raw[:ident]
		src.Ident = raw[ident+1 : host]
		src.Host = raw[host+1:]
	case ident > 0:
		src.Name = raw[:ident]
		src.Ident = raw[ident+1:]
	case host > 0:
		src.Name = raw[:host]
		src.Host = raw[host+1:]
	default:
		src.Name = raw
	}

	return src
}

// Len returns the length of the wire representation of the source,
// excluding the leading ':'.
func (s *Source) Len() (length int) {
	if s == nil {
		return 0
	}

	length = len(s.Name)
	if len(s.Ident) > 0 {
		length += 1 + len(s.Ident)
	}
	if len(s.Host) > 0 {
		length += 1 + len(s.Host)
	}

	return length
}

// String returns the wire representation of the source (without a leading
// ':').
func (s *Source) String() string {
	if s == nil {
		return ""
	}

	var b bytes.Buffer
	s.writeTo(&b)

	return b.String()
}

// IsHostmask reports whether the source looks like a full user hostmask
// (nick!ident@host), as opposed to a bare server name.
func (s *Source) IsHostmask() bool {
	return s != nil && s.Ident != "" && s.Host != ""
}

// IsServer reports whether the source looks like a server name rather than
// a user (no ident, no host).
func (s *Source) IsServer() bool {
	return s != nil && s.Ident == "" && s.Host == ""
}

// ID returns the casemap-independent identity of the source; it is the
// source Name, unfolded. Callers needing equality comparisons should fold
// it with the owning Server's casemapping.
func (s *Source) ID() string {
	if s == nil {
		return ""
	}
	return s.Name
}

func (s *Source) writeTo(b *bytes.Buffer) {
	b.WriteString(s.Name)
	if len(s.Ident) > 0 {
		b.WriteByte(prefixIdent)
		b.WriteString(s.Ident)
	}
	if len(s.Host) > 0 {
		b.WriteByte(prefixHost)
		b.WriteString(s.Host)
	}
}
