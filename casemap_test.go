package ircore

import "testing"

func TestParseCaseMapping(t *testing.T) {
	tests := []struct {
		in   string
		want CaseMapping
	}{
		{"ascii", CaseMappingASCII},
		{"strict-rfc1459", CaseMappingStrictRFC1459},
		{"rfc1459", CaseMappingRFC1459},
		{"something-unknown", CaseMappingRFC1459},
		{"", CaseMappingRFC1459},
	}
	for _, tt := range tests {
		if got := ParseCaseMapping(tt.in); got != tt.want {
			t.Errorf("ParseCaseMapping(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCaseMappingString(t *testing.T) {
	tests := []struct {
		c    CaseMapping
		want string
	}{
		{CaseMappingASCII, "ascii"},
		{CaseMappingStrictRFC1459, "strict-rfc1459"},
		{CaseMappingRFC1459, "rfc1459"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("CaseMapping(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestCaseMappingFold(t *testing.T) {
	tests := []struct {
		c    CaseMapping
		in   string
		want string
	}{
		{CaseMappingRFC1459, "Nick[Away]^", "nick{away}~"},
		{CaseMappingStrictRFC1459, "Nick[Away]^", "nick{away}^"},
		{CaseMappingASCII, "Nick[Away]^", "nick[away]^"},
	}
	for _, tt := range tests {
		if got := tt.c.Fold(tt.in); got != tt.want {
			t.Errorf("%v.Fold(%q) = %q, want %q", tt.c, tt.in, got, tt.want)
		}
	}
}

func TestCaseMappingFoldIdempotent(t *testing.T) {
	for _, c := range []CaseMapping{CaseMappingRFC1459, CaseMappingStrictRFC1459, CaseMappingASCII} {
		s := "Test[Nick]^\\"
		once := c.Fold(s)
		twice := c.Fold(once)
		if once != twice {
			t.Errorf("%v.Fold is not idempotent: Fold(s)=%q, Fold(Fold(s))=%q", c, once, twice)
		}
	}
}

func TestCaseMappingEqual(t *testing.T) {
	cm := CaseMappingRFC1459
	if !cm.Equal("Nick[Test]", "nick{test}") {
		t.Errorf("Equal: expected RFC1459 folding to equate Nick[Test] and nick{test}")
	}
	if cm.Equal("nick", "nick2") {
		t.Errorf("Equal: expected different-length strings to be unequal")
	}
	if cm.Equal("alice", "bob") {
		t.Errorf("Equal: expected unrelated nicks to be unequal")
	}
}
