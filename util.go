package ircore

import (
	"math/rand"
	"strings"
	"time"
)

var randSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// randSleep sleeps a random interval shorter than max.
func randSleep(max time.Duration) {
	if max <= 0 {
		return
	}
	time.Sleep(time.Duration(randSource.Int63n(int64(max))))
}

// defaultChanTypes are the channel-name prefixes assumed absent an
// ISUPPORT CHANTYPES token.
const defaultChanTypes = "#&"

// IsValidNick reports whether s is a syntactically valid nickname, using
// the character classes of RFC 2812 section 2.3.1:
//
//	nickname := ( letter / special ) *8( letter / digit / special / "-" )
//
// but allowing up to 64 characters instead of the grammar's 9.
func IsValidNick(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}

	if !isNickLetter(s[0]) && !isNickSpecial(s[0]) {
		return false
	}

	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isNickLetter(c) && !isDigit(c) && !isNickSpecial(c) && c != '-' {
			return false
		}
	}

	return true
}

func isNickLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNickSpecial(c byte) bool {
	switch c {
	case '[', ']', '\\', '`', '_', '^', '{', '|', '}':
		return true
	}
	return false
}

// IsValidChannel reports whether s looks like a syntactically valid
// channel name: one of the default chantypes "#&" followed by 1-49
// characters excluding space, comma, NUL, CR, LF, and ':'.
func IsValidChannel(s string) bool {
	return isValidChannelTypes(s, defaultChanTypes)
}

// IsValidChannelFor is IsValidChannel against an explicit chantypes set,
// used once ISUPPORT has told us the server's actual prefixes.
func IsValidChannelFor(s, chantypes string) bool {
	if chantypes == "" {
		chantypes = defaultChanTypes
	}
	return isValidChannelTypes(s, chantypes)
}

func isValidChannelTypes(s, chantypes string) bool {
	if len(s) < 2 || len(s) > 50 {
		return false
	}

	if !strings.ContainsRune(chantypes, rune(s[0])) {
		return false
	}

	for i := 1; i < len(s); i++ {
		switch s[i] {
		case ' ', ',', 0, '\r', '\n', ':':
			return false
		}
	}

	return true
}

// IsValidUser reports whether s is a syntactically valid ident/username
// token: non-empty, no spaces, NUL, CR, or LF, and no leading ':'.
func IsValidUser(s string) bool {
	if s == "" || s[0] == ':' {
		return false
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', 0, '\r', '\n':
			return false
		}
	}

	return true
}

// isValidHostmaskPattern reports whether s is non-empty and free of
// spaces, NUL, CR and LF; it does not check for the '!' and '@'
// separators of a nick!user@host pattern.
func isValidHostmaskPattern(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \x00\r\n")
}
