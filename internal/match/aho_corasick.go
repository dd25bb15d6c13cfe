// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package match provides multi-pattern substring matching for the device
// classifier. A single Aho-Corasick automaton scans a hostname once against
// the whole pattern table in O(n + z) instead of testing every pattern
// individually, which keeps classification cost flat as the table grows.
package match

import (
	"strings"
	"unicode/utf8"
)

// Match is one pattern occurrence in the scanned text.
type Match[T any] struct {
	// Pattern is the matched pattern text (lowercased).
	Pattern string

	// Data is the payload registered with the pattern.
	Data T

	// Position is the byte offset of the match start within the
	// lowercased text.
	Position int
}

type node struct {
	children map[rune]*node
	failure  *node
	output   []int
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

type pattern[T any] struct {
	text string
	data T
}

// Matcher is a case-insensitive Aho-Corasick automaton. It is built once
// from a pattern table and immutable afterwards, so it is safe for
// concurrent use without locking.
type Matcher[T any] struct {
	root     *node
	patterns []pattern[T]
}

// NewMatcher builds an automaton from a pattern table. Empty patterns are
// ignored. Pattern text is matched case-insensitively.
func NewMatcher[T any](table map[string]T) *Matcher[T] {
	m := &Matcher[T]{root: newNode()}
	for text, data := range table {
		if text == "" {
			continue
		}
		m.patterns = append(m.patterns, pattern[T]{text: strings.ToLower(text), data: data})
	}
	for i, p := range m.patterns {
		m.insert(i, p.text)
	}
	m.buildFailureLinks()
	return m
}

func (m *Matcher[T]) insert(index int, text string) {
	n := m.root
	for _, ch := range text {
		child := n.children[ch]
		if child == nil {
			child = newNode()
			n.children[ch] = child
		}
		n = child
	}
	n.output = append(n.output, index)
}

// buildFailureLinks wires suffix fallbacks breadth-first so a failed
// transition resumes at the longest proper suffix that is still a prefix of
// some pattern.
func (m *Matcher[T]) buildFailureLinks() {
	var queue []*node
	for _, child := range m.root.children {
		child.failure = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}
			if fail == nil {
				child.failure = m.root
			} else {
				child.failure = fail.children[ch]
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search returns every pattern occurrence in text.
func (m *Matcher[T]) Search(text string) []Match[T] {
	if len(m.patterns) == 0 {
		return nil
	}

	var matches []Match[T]
	n := m.root
	for i, ch := range strings.ToLower(text) {
		for n != nil && n.children[ch] == nil {
			n = n.failure
		}
		if n == nil {
			n = m.root
			continue
		}
		n = n.children[ch]

		// i is the byte offset of the current rune's start; the match
		// ends after the rune's full byte width.
		end := i + utf8.RuneLen(ch)
		for _, idx := range n.output {
			p := m.patterns[idx]
			matches = append(matches, Match[T]{
				Pattern:  p.text,
				Data:     p.data,
				Position: end - len(p.text),
			})
		}
	}
	return matches
}

// Best returns the longest pattern occurring in text. Longer patterns carry
// more evidence ("google-home" over "google"), so the classifier prefers
// them. Ties break on the earlier position.
func (m *Matcher[T]) Best(text string) (Match[T], bool) {
	matches := m.Search(text)
	if len(matches) == 0 {
		var zero Match[T]
		return zero, false
	}

	best := matches[0]
	for _, match := range matches[1:] {
		if len(match.Pattern) > len(best.Pattern) ||
			(len(match.Pattern) == len(best.Pattern) && match.Position < best.Position) {
			best = match
		}
	}
	return best, true
}

// Contains reports whether any pattern occurs in text.
func (m *Matcher[T]) Contains(text string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	n := m.root
	for _, ch := range strings.ToLower(text) {
		for n != nil && n.children[ch] == nil {
			n = n.failure
		}
		if n == nil {
			n = m.root
			continue
		}
		n = n.children[ch]
		if len(n.output) > 0 {
			return true
		}
	}
	return false
}

// PatternCount returns the number of registered patterns.
func (m *Matcher[T]) PatternCount() int {
	return len(m.patterns)
}
