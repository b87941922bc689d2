// Package filter wraps the profanity detector with a mutable custom-word list
// so moderators can extend the dictionary at runtime.
package filter

import (
	"sort"
	"strings"
	"sync"

	goaway "github.com/TwiN/go-away"
)

// Filter censors and detects inappropriate content using the base profanity
// dictionary plus a runtime-managed set of custom words.
type Filter struct {
	mu       sync.RWMutex
	detector *goaway.ProfanityDetector
	custom   map[string]struct{}
}

// New creates a Filter loaded with the default dictionary and any initial
// custom words.
func New(customWords ...string) *Filter {
	f := &Filter{
		custom: make(map[string]struct{}, len(customWords)),
	}
	for _, word := range customWords {
		if normalized := normalizeWord(word); normalized != "" {
			f.custom[normalized] = struct{}{}
		}
	}
	f.rebuildLocked()
	return f
}

// Censor returns text with flagged spans replaced by mask characters.
// Unflagged words are left untouched.
func (f *Filter) Censor(text string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.detector.Censor(text)
}

// Detect reports whether text contains content the current dictionary flags.
func (f *Filter) Detect(text string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.detector.IsProfane(text)
}

// AddWord adds a custom word to the dictionary. It returns true if the word
// was newly added and false if it was already present or empty.
func (f *Filter) AddWord(word string) bool {
	normalized := normalizeWord(word)
	if normalized == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.custom[normalized]; exists {
		return false
	}
	f.custom[normalized] = struct{}{}
	f.rebuildLocked()
	return true
}

// RemoveWord removes a custom word from the dictionary. It returns true if the
// word was present. The detector has no incremental removal, so the loaded
// dictionary is rebuilt from the base list plus the remaining custom words.
func (f *Filter) RemoveWord(word string) bool {
	normalized := normalizeWord(word)
	if normalized == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.custom[normalized]; !exists {
		return false
	}
	delete(f.custom, normalized)
	f.rebuildLocked()
	return true
}

// Words returns the custom words in sorted order.
func (f *Filter) Words() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	words := make([]string, 0, len(f.custom))
	for word := range f.custom {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}

// rebuildLocked reconstructs the detector from the base dictionary plus the
// current custom words. Callers must hold the write lock (or be the sole
// owner, as in New).
func (f *Filter) rebuildLocked() {
	profanities := make([]string, 0, len(goaway.DefaultProfanities)+len(f.custom))
	profanities = append(profanities, goaway.DefaultProfanities...)
	for word := range f.custom {
		profanities = append(profanities, word)
	}

	f.detector = goaway.NewProfanityDetector().WithCustomDictionary(
		profanities,
		goaway.DefaultFalsePositives,
		goaway.DefaultFalseNegatives,
	)
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
