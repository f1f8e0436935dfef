package track

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// RawTrack is a catalogue record as delivered by a playlist source. The id is
// kept raw because sources disagree on its JSON type.
type RawTrack struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Title    string          `json:"title"`
	Artist   string          `json:"artist"`
	Cover    string          `json:"cover"`
	URL      string          `json:"url"`
	Duration float64         `json:"duration"`
}

// maxGeneratedID bounds ids generated for records without one.
const maxGeneratedID = 1 << 30

// newID generates ids for records that carry none. Generated ids are only
// stable for the current session.
var newID = func() int {
	return rand.IntN(maxGeneratedID) + 1
}

// Normalize converts raw records into tracks in their original order.
//
// Records without an id get a generated one. Records whose id cannot be
// coerced to an integer, and records repeating an earlier id, are dropped;
// each drop is reported in the returned warnings. Missing fields are filled
// with defaults.
func Normalize(raw []RawTrack) ([]Track, []error) {
	var warnings []error
	seen := make(map[int]struct{}, len(raw))
	tracks := make([]Track, 0, len(raw))

	for i, r := range raw {
		id, present, err := coerceID(r.ID)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("record %d (%q): %w", i, r.Title, err))
			continue
		}
		if !present {
			id = generateUnique(seen)
		}
		if _, dup := seen[id]; dup {
			warnings = append(warnings, fmt.Errorf("record %d (%q): %w: %d", i, r.Title, ErrDuplicateID, id))
			continue
		}
		seen[id] = struct{}{}

		tracks = append(tracks, Track{
			ID:       id,
			Title:    strings.TrimSpace(r.Title),
			Artist:   strings.TrimSpace(r.Artist),
			Cover:    strings.TrimSpace(r.Cover),
			URL:      strings.TrimSpace(r.URL),
			Duration: r.Duration,
		}.WithDefaults())
	}

	return tracks, warnings
}

// Dedup keeps the first item for every id, in order, and reports the rest.
func Dedup[T any](items []T, idOf func(T) int) ([]T, []error) {
	var warnings []error
	seen := make(map[int]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		id := idOf(it)
		if _, dup := seen[id]; dup {
			warnings = append(warnings, fmt.Errorf("%w: %d", ErrDuplicateID, id))
			continue
		}
		seen[id] = struct{}{}
		out = append(out, it)
	}
	return out, warnings
}

// coerceID parses a raw JSON id. present is false for absent or null ids.
func coerceID(raw json.RawMessage) (id int, present bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, true, fmt.Errorf("%w: %s", ErrInvalidID, text)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		text = s
	}

	if n, err := strconv.Atoi(text); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, true, fmt.Errorf("%w: %s", ErrInvalidID, text)
	}
	return int(f), true, nil
}

func generateUnique(taken map[int]struct{}) int {
	for {
		id := newID()
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
