package quran

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSurahTable(t *testing.T) {
	if Count != 114 {
		t.Fatalf("expected 114 surahs, got %d", Count)
	}
	total := 0
	for i, s := range All() {
		if s.Number != i+1 {
			t.Errorf("surah at index %d has number %d", i, s.Number)
		}
		total += s.Verses
	}
	if total != 6236 {
		t.Errorf("expected 6236 verses in total, got %d", total)
	}
}

func TestLookup(t *testing.T) {
	s, ok := Lookup(2)
	if !ok || s.Name != "Al-Baqarah" || s.Verses != 286 {
		t.Errorf("unexpected surah 2: %+v", s)
	}
	if _, ok := Lookup(0); ok {
		t.Error("surah 0 should not exist")
	}
	if _, ok := Lookup(115); ok {
		t.Error("surah 115 should not exist")
	}
}

func TestLocatorUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Locator
		wantErr bool
	}{
		{"numbers", `{"surah":2,"verse":255}`, Locator{2, 255}, false},
		{"string surah", `{"surah":"18","verse":10}`, Locator{18, 10}, false},
		{"string verse", `{"surah":1,"verse":"7"}`, Locator{1, 7}, false},
		{"missing verse", `{"surah":3}`, Locator{3, 0}, false},
		{"non numeric", `{"surah":"abc","verse":1}`, Locator{}, true},
		{"not an object", `"2:255"`, Locator{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Locator
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLocatorValidate(t *testing.T) {
	tests := []struct {
		loc  Locator
		want error
	}{
		{Locator{1, 7}, nil},
		{Locator{114, 6}, nil},
		{Locator{1, 8}, ErrUnknownVerse},
		{Locator{2, 0}, ErrUnknownVerse},
		{Locator{0, 1}, ErrUnknownSurah},
		{Locator{115, 1}, ErrUnknownSurah},
	}
	for _, tt := range tests {
		err := tt.loc.Validate()
		if tt.want == nil && err != nil {
			t.Errorf("%+v: unexpected error %v", tt.loc, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%+v: got %v, want %v", tt.loc, err, tt.want)
		}
	}
}

func TestLocatorString(t *testing.T) {
	got := Locator{Surah: 2, Verse: 255}.String()
	want := "Surah 2. Al-Baqarah (البقرة): Verse 255"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := (Locator{Surah: 200, Verse: 1}).String(); got != "Surah 200: Verse 1" {
		t.Errorf("unknown surah fallback = %q", got)
	}
}

func TestParse(t *testing.T) {
	l, err := Parse(" 36:12 ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l != (Locator{36, 12}) {
		t.Errorf("got %+v", l)
	}
	for _, bad := range []string{"36", "x:1", "1:x", "1:9"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}
