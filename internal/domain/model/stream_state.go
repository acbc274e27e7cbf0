package model

import (
	"strings"
	"unicode/utf8"
)

// RenderPhase is the state of a streaming render.
type RenderPhase int

const (
	PhaseAccumulating RenderPhase = iota
	PhaseFlushing
	PhaseFinalizing
	PhaseDone
)

func (p RenderPhase) String() string {
	switch p {
	case PhaseAccumulating:
		return "accumulating"
	case PhaseFlushing:
		return "flushing"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// StreamState is the per-response accumulation state of the renderer.
// Pending is always a suffix of FullText.
type StreamState struct {
	Phase         RenderPhase
	FullText      string
	Pending       string
	LastDisplayed string
	ActiveFormat  string
}

// Append records a received delta.
func (s *StreamState) Append(delta string) {
	s.FullText += delta
	s.Pending += delta
}

// PendingRunes is the size of the unflushed tail in characters.
func (s *StreamState) PendingRunes() int { return utf8.RuneCountInString(s.Pending) }

// NeedsDisplay reports whether FullText holds something worth showing that
// is not already on screen.
func (s *StreamState) NeedsDisplay() bool {
	return strings.TrimSpace(s.FullText) != "" && s.FullText != s.LastDisplayed
}

// MarkDisplayed records a successful (or suppressed no-op) update.
func (s *StreamState) MarkDisplayed(format string) {
	s.LastDisplayed = s.FullText
	s.Pending = ""
	if format != "" {
		s.ActiveFormat = format
	}
}

// Skip drops the pending tail without changing what is displayed.
func (s *StreamState) Skip() { s.Pending = "" }
