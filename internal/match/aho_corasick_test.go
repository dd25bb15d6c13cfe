// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package match

import (
	"testing"
)

func TestSearchFindsAllPatterns(t *testing.T) {
	m := NewMatcher(map[string]string{
		"cam":    "camera",
		"camera": "camera",
		"esp":    "iot",
	})

	matches := m.Search("esp32-camera-lab")
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(matches), matches)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	m := NewMatcher(map[string]string{"iphone": "phone"})

	if got := m.Search("Johns-iPhone"); len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	if !m.Contains("IPHONE-12") {
		t.Error("Contains should match case-insensitively")
	}
}

func TestBestPrefersLongestPattern(t *testing.T) {
	m := NewMatcher(map[string]string{
		"google":      "generic",
		"google-home": "speaker",
	})

	best, ok := m.Best("google-home-kitchen")
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Pattern != "google-home" {
		t.Errorf("Best = %q, want google-home", best.Pattern)
	}
	if best.Data != "speaker" {
		t.Errorf("Data = %q, want speaker", best.Data)
	}
}

func TestBestTieBreaksOnPosition(t *testing.T) {
	m := NewMatcher(map[string]int{
		"cam": 1,
		"esp": 2,
	})

	best, ok := m.Best("esp-cam")
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Pattern != "esp" {
		t.Errorf("Best = %q, want esp (earlier position)", best.Pattern)
	}
}

func TestNoMatch(t *testing.T) {
	m := NewMatcher(map[string]string{"sensor": "iot"})

	if _, ok := m.Best("workstation-42"); ok {
		t.Error("expected no match")
	}
	if m.Contains("workstation-42") {
		t.Error("Contains should be false")
	}
}

func TestEmptyTable(t *testing.T) {
	m := NewMatcher(map[string]string{})

	if got := m.Search("anything"); got != nil {
		t.Errorf("Search on empty table = %v, want nil", got)
	}
	if m.Contains("anything") {
		t.Error("Contains on empty table should be false")
	}
	if m.PatternCount() != 0 {
		t.Errorf("PatternCount = %d, want 0", m.PatternCount())
	}
}

func TestSearchReportsByteOffsets(t *testing.T) {
	m := NewMatcher(map[string]string{"cam": "camera"})

	matches := m.Search("esp32-cam")
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	if matches[0].Position != 6 {
		t.Errorf("Position = %d, want 6", matches[0].Position)
	}
}

func TestSearchPositionWithMultibyteText(t *testing.T) {
	// "café" ends in a two-byte rune; the start offset must account for
	// the full byte width of the final matched rune.
	m := NewMatcher(map[string]string{"café": "appliance"})

	matches := m.Search("lecafé")
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	if matches[0].Position != 2 {
		t.Errorf("Position = %d, want 2 (byte offset of match start)", matches[0].Position)
	}
}

func TestOverlappingSuffixPatterns(t *testing.T) {
	// "shers" exercises failure links: after failing on "she" the automaton
	// must resume inside "hers".
	m := NewMatcher(map[string]string{
		"she":  "a",
		"hers": "b",
	})

	matches := m.Search("ushers")
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
}
