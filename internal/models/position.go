// Package models defines data structures for lectio
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Default location used when a path carries no segments.
const (
	DefaultBook    = "Gn"
	DefaultChapter = 1
	DefaultVerse   = 1
	DefaultSource  = "vulgate"
)

// Position identifies the verse currently on screen. It is a value type:
// navigation replaces it wholesale and never mutates a field in place.
type Position struct {
	Source  string `json:"source"`
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

// DefaultPosition returns Gn 1:1.
func DefaultPosition() Position {
	return Position{Source: DefaultSource, Book: DefaultBook, Chapter: DefaultChapter, Verse: DefaultVerse}
}

// Ref returns the human-readable verse reference, e.g. "Gn 1:1".
// It doubles as the cache key suffix.
func (p Position) Ref() string {
	return fmt.Sprintf("%s %d:%d", p.Book, p.Chapter, p.Verse)
}

// Path returns the addressable location, e.g. "/Gn/1/1".
func (p Position) Path() string {
	return fmt.Sprintf("/%s/%d/%d", p.Book, p.Chapter, p.Verse)
}

// WithVerse returns a copy positioned at verse v of the same chapter.
func (p Position) WithVerse(v int) Position {
	p.Verse = v
	return p
}

// SameVerse reports whether p and o address the same verse (source ignored).
func (p Position) SameVerse(o Position) bool {
	return p.Book == o.Book && p.Chapter == o.Chapter && p.Verse == o.Verse
}

// Validate checks the chapter and verse lower bounds.
func (p Position) Validate() error {
	if p.Book == "" {
		return fmt.Errorf("position: book is required")
	}
	if p.Chapter < 1 {
		return fmt.Errorf("position: chapter must be >= 1, got %d", p.Chapter)
	}
	if p.Verse < 1 {
		return fmt.Errorf("position: verse must be >= 1, got %d", p.Verse)
	}
	return nil
}

// ParseLocation parses "/{book}/{chapter}/{verse}". A path with no segments
// yields Gn 1:1; a partial or malformed path is an error.
func ParseLocation(path string) (Position, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return DefaultPosition(), nil
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		return Position{}, fmt.Errorf("location %q: expected /{book}/{chapter}/{verse}", path)
	}

	chapter, err := strconv.Atoi(parts[1])
	if err != nil {
		return Position{}, fmt.Errorf("location %q: invalid chapter: %w", path, err)
	}
	verse, err := strconv.Atoi(parts[2])
	if err != nil {
		return Position{}, fmt.Errorf("location %q: invalid verse: %w", path, err)
	}

	pos := Position{Source: DefaultSource, Book: parts[0], Chapter: chapter, Verse: verse}
	if err := pos.Validate(); err != nil {
		return Position{}, fmt.Errorf("location %q: %w", path, err)
	}
	return pos, nil
}

// ParseReference parses "{book} {chapter}:{verse}" as typed into the verse picker.
func ParseReference(ref string) (Position, error) {
	book, rest, ok := strings.Cut(strings.TrimSpace(ref), " ")
	if !ok {
		return Position{}, fmt.Errorf("reference %q: expected \"{book} {chapter}:{verse}\"", ref)
	}
	ch, vs, ok := strings.Cut(strings.TrimSpace(rest), ":")
	if !ok {
		return Position{}, fmt.Errorf("reference %q: missing ':'", ref)
	}
	return ParseLocation("/" + book + "/" + ch + "/" + vs)
}
