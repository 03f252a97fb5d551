package ircore

import "testing"

func TestModeSetParse(t *testing.T) {
	ms := NewModeSet("b,k,l,imnt")

	changes := ms.Parse("+nt-l+k", []string{"secret"})
	if len(changes) != 4 {
		t.Fatalf("Parse: got %d changes, want 4: %+v", len(changes), changes)
	}

	want := []ModeChange{
		{Add: true, Name: 'n'},
		{Add: true, Name: 't'},
		{Add: false, Name: 'l'},
		{Add: true, Name: 'k', HasArg: true, Arg: "secret"},
	}
	for i, w := range want {
		got := changes[i]
		if got.Add != w.Add || got.Name != w.Name || got.HasArg != w.HasArg || got.Arg != w.Arg {
			t.Errorf("Parse()[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestModeChangeShortAndString(t *testing.T) {
	add := ModeChange{Add: true, Name: 'o', HasArg: true, Arg: "alice"}
	if got, want := add.Short(), "+o"; got != want {
		t.Errorf("Short() = %q, want %q", got, want)
	}
	if got, want := add.String(), "+o alice"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	remove := ModeChange{Add: false, Name: 'b'}
	if got, want := remove.String(), "-b"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestModeSetApplyTracksSettingModes(t *testing.T) {
	ms := NewModeSet("b,k,l,imnt")

	ms.Apply(ms.Parse("+nt", nil))
	if got, want := ms.String(), "+nt"; got != want {
		t.Fatalf("String() after +nt = %q, want %q", got, want)
	}

	ms.Apply(ms.Parse("-n", nil))
	if got, want := ms.String(), "+t"; got != want {
		t.Fatalf("String() after -n = %q, want %q", got, want)
	}
}

func TestModeSetApplyReplacesArgModes(t *testing.T) {
	ms := NewModeSet("b,k,l,imnt")

	ms.Apply(ms.Parse("+l", []string{"10"}))
	if got, want := ms.String(), "+l 10"; got != want {
		t.Fatalf("String() after +l 10 = %q, want %q", got, want)
	}

	ms.Apply(ms.Parse("+l", []string{"20"}))
	if got, want := ms.String(), "+l 20"; got != want {
		t.Fatalf("String() after re-setting +l 20 = %q, want %q", got, want)
	}
}

func TestParsePrefixMap(t *testing.T) {
	pm := ParsePrefixMap("(ov)@+")
	if !pm.Valid() {
		t.Fatalf("expected (ov)@+ to parse into a valid PrefixMap")
	}
	if pm.CharFor('o') != '@' || pm.CharFor('v') != '+' {
		t.Errorf("CharFor: got o=%c v=%c, want @/+", pm.CharFor('o'), pm.CharFor('v'))
	}
	if pm.ModeFor('@') != 'o' || pm.ModeFor('+') != 'v' {
		t.Errorf("ModeFor: got @=%c +=%c, want o/v", pm.ModeFor('@'), pm.ModeFor('+'))
	}

	malformed := ParsePrefixMap("ov)@+")
	if malformed.Valid() {
		t.Errorf("expected a prefix token missing the leading '(' to be invalid")
	}

	mismatched := ParsePrefixMap("(ov)@")
	if mismatched.Valid() {
		t.Errorf("expected mismatched modes/chars lengths to be invalid")
	}
}

func TestPrefixMapRankAndHighest(t *testing.T) {
	pm := ParsePrefixMap("(ohv)@%+")

	if pm.Rank('@') != 0 || pm.Rank('%') != 1 || pm.Rank('+') != 2 {
		t.Errorf("Rank: got @=%d %%=%d +=%d, want 0/1/2", pm.Rank('@'), pm.Rank('%'), pm.Rank('+'))
	}
	if pm.Rank('!') != -1 {
		t.Errorf("Rank('!') = %d, want -1 for an unrecognized char", pm.Rank('!'))
	}

	if got := pm.Highest("+%"); got != '%' {
		t.Errorf("Highest(\"+%%\") = %c, want %%", got)
	}
	if got := pm.Highest(""); got != 0 {
		t.Errorf("Highest(\"\") = %c, want 0", got)
	}
}

func TestPrefixMapSortPrefixes(t *testing.T) {
	pm := ParsePrefixMap("(ohv)@%+")
	if got, want := pm.SortPrefixes("+@%"), "@%+"; got != want {
		t.Errorf("SortPrefixes(\"+@%%\") = %q, want %q", got, want)
	}
}

func TestPrefixMapParseUserPrefix(t *testing.T) {
	pm := ParsePrefixMap("(ov)@+")

	prefixes, nick, ok := pm.ParseUserPrefix("@+alice")
	if !ok || prefixes != "@+" || nick != "alice" {
		t.Fatalf("ParseUserPrefix(\"@+alice\") = (%q, %q, %v), want (@+, alice, true)", prefixes, nick, ok)
	}

	prefixes, nick, ok = pm.ParseUserPrefix("bob")
	if !ok || prefixes != "" || nick != "bob" {
		t.Fatalf("ParseUserPrefix(\"bob\") = (%q, %q, %v), want (\"\", bob, true)", prefixes, nick, ok)
	}

	_, _, ok = pm.ParseUserPrefix("@!invalid!")
	if ok {
		t.Errorf("ParseUserPrefix: expected an invalid nick remainder to fail")
	}
}

func TestPrefixMapIsPrefixModeAndChar(t *testing.T) {
	pm := ParsePrefixMap("(ov)@+")
	if !pm.IsPrefixMode('o') || pm.IsPrefixMode('b') {
		t.Errorf("IsPrefixMode: got o=%v b=%v, want true/false", pm.IsPrefixMode('o'), pm.IsPrefixMode('b'))
	}
	if !pm.IsPrefixChar('@') || pm.IsPrefixChar('%') {
		t.Errorf("IsPrefixChar: got @=%v %%=%v, want true/false", pm.IsPrefixChar('@'), pm.IsPrefixChar('%'))
	}
}
