// Package dictation routes transcribed speech into a note: either spliced
// over the text range the user had selected when recording started, or
// appended as a new paragraph.
package dictation

import "sync"

// TextRange is a half-open [Start, End) span of rune offsets into a body.
type TextRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether r selects nothing.
func (r TextRange) Empty() bool {
	return r.End <= r.Start
}

func (r TextRange) clamp(n int) TextRange {
	r.Start = min(max(r.Start, 0), n)
	r.End = min(max(r.End, r.Start), n)
	return r
}

// Selection is the editor state reported with a selection change: the
// selected range and the full body text it indexes into.
type Selection struct {
	Range TextRange `json:"range"`
	Value string    `json:"value"`
}

// Engine remembers the editor's last selection and, once recording starts,
// the range that the transcript will replace.
type Engine struct {
	mu       sync.Mutex
	last     Selection
	captured *Selection
}

// ObserveSelection records sel as the last known editor selection.
func (e *Engine) ObserveSelection(sel Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = sel
}

// Capture fixes the replacement range at recording start. A live non-empty
// selection wins. Otherwise the last known selection is reused if it is
// non-empty and was taken over the same body text. It reports whether a
// range was captured.
func (e *Engine) Capture(live Selection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !live.Range.Empty():
		c := live
		e.captured = &c
	case !e.last.Range.Empty() && e.last.Value == live.Value:
		c := e.last
		e.captured = &c
	default:
		e.captured = nil
	}
	return e.captured != nil
}

// Overlay returns the captured range and the body it applies to, for
// highlighting while recording.
func (e *Engine) Overlay() (TextRange, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.captured == nil {
		return TextRange{}, "", false
	}
	runes := []rune(e.captured.Value)
	return e.captured.Range.clamp(len(runes)), e.captured.Value, true
}

// Complete splices text over the captured range of the captured body and
// clears the capture. It reports false, leaving the text unused, when
// nothing was captured.
func (e *Engine) Complete(text string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.captured == nil {
		return "", false
	}
	out := Splice(e.captured.Value, e.captured.Range, text)
	e.captured = nil
	return out, true
}

// Clear drops any captured range.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captured = nil
}

// Splice returns body with r replaced by text. r is clamped to body.
func Splice(body string, r TextRange, text string) string {
	runes := []rune(body)
	r = r.clamp(len(runes))
	return string(runes[:r.Start]) + text + string(runes[r.End:])
}
