// Package rag answers fact-seeking questions against a pre-built corpus of
// textbook pages: embed the query, scan the corpus for the nearest passages,
// stitch them into a context block, and generate a grounded answer.
package rag

import (
	"fmt"
	"strings"
)

// Source is the parsed provenance label carried by every corpus document.
// The stored form is exactly five pipe-delimited fields:
// class|subject|book|language|page.
type Source struct {
	Class    string `json:"class"`
	Subject  string `json:"subject"`
	Book     string `json:"book"`
	Language string `json:"language"`
	Page     string `json:"page"`
}

// ParseSource parses the canonical pipe-delimited form. Parsing is strict:
// anything other than five fields is an error.
func ParseSource(raw string) (Source, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 5 {
		return Source{}, fmt.Errorf("malformed source %q: expected 5 pipe-delimited fields, got %d", raw, len(parts))
	}
	return Source{
		Class:    strings.TrimSpace(parts[0]),
		Subject:  strings.TrimSpace(parts[1]),
		Book:     strings.TrimSpace(parts[2]),
		Language: strings.TrimSpace(parts[3]),
		Page:     strings.TrimSpace(parts[4]),
	}, nil
}

// String returns the canonical stored form.
func (s Source) String() string {
	return strings.Join([]string{s.Class, s.Subject, s.Book, s.Language, s.Page}, "|")
}

// Header renders the citation line placed above each passage in the
// assembled context block.
func (s Source) Header() string {
	return fmt.Sprintf("[Class %s %s, %s, page %s]", s.Class, s.Subject, s.Book, s.Page)
}
