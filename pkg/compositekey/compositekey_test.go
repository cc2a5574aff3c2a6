package compositekey

import (
	"testing"
	"unicode/utf8"
)

func TestSplit_FixedWidth(t *testing.T) {
	ns, id := Split("abcdefghij", 6)
	if ns != "abcdef" || id != "ghij" {
		t.Fatalf("Split() = (%q, %q), want (%q, %q)", ns, id, "abcdef", "ghij")
	}
}

func TestSplit_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		width  int
		wantNS string
		wantID string
	}{
		{name: "exact width", key: "NS0001", width: 6, wantNS: "NS0001", wantID: ""},
		{name: "shorter than width", key: "NS", width: 6, wantNS: "NS", wantID: ""},
		{name: "empty key", key: "", width: 6, wantNS: "", wantID: ""},
		{name: "zero width", key: "abc", width: 0, wantNS: "", wantID: "abc"},
		{name: "no content check", key: "a/b:c.d-e", width: 3, wantNS: "a/b", wantID: ":c.d-e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, id := Split(tt.key, tt.width)
			if ns != tt.wantNS || id != tt.wantID {
				t.Errorf("Split(%q, %d) = (%q, %q), want (%q, %q)", tt.key, tt.width, ns, id, tt.wantNS, tt.wantID)
			}
		})
	}
}

func TestCodec_DefaultsAndRoundTrip(t *testing.T) {
	c := New(0)
	if c.Width != DefaultWidth {
		t.Fatalf("New(0).Width = %d, want %d", c.Width, DefaultWidth)
	}
	ns, id := c.Split("NS0001user-42")
	if got := c.Join(ns, id); got != "NS0001user-42" {
		t.Fatalf("Join(Split(k)) = %q, want original key", got)
	}
	if c.Valid("NS0001") {
		t.Fatalf("Valid() should reject a key without local id")
	}
	if !c.Valid("NS0001x") {
		t.Fatalf("Valid() should accept a full key")
	}
}

func TestSplit_CountsBytesNotRunes(t *testing.T) {
	key := "日本語"
	ns, id := Split(key, 4)
	if len(ns) != 4 || len(id) != len(key)-4 {
		t.Fatalf("Split() = (%q, %q), want a 4-byte namespace", ns, id)
	}
	if utf8.ValidString(ns) || utf8.ValidString(id) {
		t.Fatalf("Split() = (%q, %q), want the middle rune cut in two", ns, id)
	}
	if got := Join(ns, id); got != key {
		t.Fatalf("Join() = %q, want %q", got, key)
	}
}
