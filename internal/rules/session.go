package rules

import (
	"regexp"
	"strings"
)

var (
	sqlLiteralRe  = regexp.MustCompile(`'(?:[^']|'')*'`)
	sqlNumberRe   = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	sqlParamRe    = regexp.MustCompile(`\$\d+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	sqlCommentRe  = regexp.MustCompile(`--[^\n]*`)
	inListValueRe = regexp.MustCompile(`\bin\s*\((?:\s*\?\s*,?)+\)`)
)

// NormalizeQuery reduces a query to its shape: literals, numbers and
// placeholders collapse to "?", comments go away, whitespace and case
// are canonicalized. Two executions of the same statement with different
// parameters normalize identically.
func NormalizeQuery(q string) string {
	s := sqlCommentRe.ReplaceAllString(q, " ")
	s = sqlLiteralRe.ReplaceAllString(s, "?")
	s = sqlParamRe.ReplaceAllString(s, "?")
	s = sqlNumberRe.ReplaceAllString(s, "?")
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// IN lists of any length collapse to one placeholder so batch size
	// does not change the shape.
	s = inListValueRe.ReplaceAllString(s, "in (?)")
	return s
}

// Session is the caller-owned window for cross-plan detection (the N+1
// rule). It maps normalized query shapes to their occurrences within one
// logical analysis session. There is deliberately no package-level
// instance: concurrent sessions must not interfere, so the caller creates
// one per session and passes it in.
type Session struct {
	shapes map[string]*shapeRecord
}

type shapeRecord struct {
	shape       string
	occurrences []string
}

func NewSession() *Session {
	return &Session{shapes: make(map[string]*shapeRecord)}
}

// Observe records one execution of the query in the session window and
// returns its normalized shape. Call exactly once per analyzed plan;
// Detect only reads the window, keeping detection idempotent.
func (s *Session) Observe(queryText string) string {
	shape := NormalizeQuery(queryText)
	if shape == "" {
		return ""
	}
	rec, ok := s.shapes[shape]
	if !ok {
		rec = &shapeRecord{shape: shape}
		s.shapes[shape] = rec
	}
	rec.occurrences = append(rec.occurrences, queryText)
	return shape
}

// Count returns how many times the shape has been observed.
func (s *Session) Count(shape string) int {
	if rec, ok := s.shapes[shape]; ok {
		return len(rec.occurrences)
	}
	return 0
}

// OccurrencesOf returns the recorded query texts for a shape.
func (s *Session) OccurrencesOf(shape string) []string {
	if rec, ok := s.shapes[shape]; ok {
		return rec.occurrences
	}
	return nil
}
