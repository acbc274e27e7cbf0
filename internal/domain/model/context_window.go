package model

import "telegram-ai-relay/internal/domain/ports/adapter"

// ContextWindow is the ordered list of turns submitted for one completion.
// Summary is the optional synthetic leading system turn; Turns holds the
// retained recent turns oldest first, the last one being the new input.
type ContextWindow struct {
	Summary *Turn
	Turns   []Turn
}

// Len counts every turn that will be submitted, summary included.
func (w *ContextWindow) Len() int {
	if w == nil {
		return 0
	}
	n := len(w.Turns)
	if w.Summary != nil {
		n++
	}
	return n
}

// Summarized reports whether an overflow set was folded into a summary.
func (w *ContextWindow) Summarized() bool { return w != nil && w.Summary != nil }

// Messages converts the window into completion messages. The result is a new
// slice on every call.
func (w *ContextWindow) Messages() []adapter.Message {
	if w == nil {
		return nil
	}
	out := make([]adapter.Message, 0, w.Len())
	if w.Summary != nil {
		out = append(out, adapter.Message{Role: string(w.Summary.Role), Content: w.Summary.Content})
	}
	for _, t := range w.Turns {
		out = append(out, adapter.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// Input is the new user turn, always the newest entry of the window.
func (w *ContextWindow) Input() Turn {
	if w == nil || len(w.Turns) == 0 {
		return Turn{}
	}
	return w.Turns[len(w.Turns)-1]
}
