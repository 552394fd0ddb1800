package quran

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownSurah = errors.New("surah must be between 1 and 114")
	ErrUnknownVerse = errors.New("verse is out of range for surah")
)

// Locator points at a single verse.
type Locator struct {
	Surah int `json:"surah"`
	Verse int `json:"verse"`
}

// UnmarshalJSON accepts the surah as either a number or a numeric string.
func (l *Locator) UnmarshalJSON(data []byte) error {
	var raw struct {
		Surah json.RawMessage `json:"surah"`
		Verse json.RawMessage `json:"verse"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	surah, err := looseInt(raw.Surah)
	if err != nil {
		return fmt.Errorf("surah: %w", err)
	}
	verse, err := looseInt(raw.Verse)
	if err != nil {
		return fmt.Errorf("verse: %w", err)
	}
	l.Surah, l.Verse = surah, verse
	return nil
}

func looseInt(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(s))
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Validate reports whether the locator names an existing verse.
func (l Locator) Validate() error {
	s, ok := Lookup(l.Surah)
	if !ok {
		return ErrUnknownSurah
	}
	if l.Verse < 1 || l.Verse > s.Verses {
		return fmt.Errorf("%w: surah %d has %d verses", ErrUnknownVerse, s.Number, s.Verses)
	}
	return nil
}

// String renders the locator the way it appears in notifications, e.g.
// "Surah 2. Al-Baqarah (البقرة): Verse 255".
func (l Locator) String() string {
	s, ok := Lookup(l.Surah)
	if !ok {
		return fmt.Sprintf("Surah %d: Verse %d", l.Surah, l.Verse)
	}
	return fmt.Sprintf("Surah %d. %s (%s): Verse %d", s.Number, s.Name, s.ArabicName, l.Verse)
}

// Parse reads a "surah:verse" reference such as "2:255".
func Parse(ref string) (Locator, error) {
	parts := strings.SplitN(strings.TrimSpace(ref), ":", 2)
	if len(parts) != 2 {
		return Locator{}, fmt.Errorf("malformed reference %q", ref)
	}
	surah, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Locator{}, fmt.Errorf("parsing surah: %w", err)
	}
	verse, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Locator{}, fmt.Errorf("parsing verse: %w", err)
	}
	l := Locator{Surah: surah, Verse: verse}
	if err := l.Validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}
