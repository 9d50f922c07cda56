package engine

import (
	"strings"

	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
	"codeberg.org/sigterm-de/goscribe/internal/textenc"
)

// Document is the snapshot of a buffer a transform works on.
type Document struct {
	Text      string            // lines joined with "\n"
	Selection textbuf.Selection // byte range in Text; empty selects everything
	EOL       textenc.EOL       // line terminator used on disk
	Language  string            // language tag
	Name      string            // file name without directory, "" if unsaved
}

// ScriptState backs the `state` object a transform's main() receives.
// Scripts always see "\n"-separated text. Writes are recorded and resolved
// by Result once main() returns.
type ScriptState struct {
	doc      Document
	sel      textbuf.Selection
	fullText string
	text     string

	written [mutationKinds]bool
	insert  string
	errMsg  *string
	info    *string
}

// mutationOrder is the precedence among recorded writes: the selection
// beats the whole document, which beats an insertion at the cursor.
var mutationOrder = [...]MutationKind{MutationReplaceSelect, MutationReplaceDoc, MutationInsertAtCursor}

// NewScriptState seeds the state from doc. An empty selection is widened to
// the whole text so state.text is never empty for a non-empty document.
func NewScriptState(doc Document) *ScriptState {
	n := len(doc.Text)
	sel := doc.Selection
	sel.Start, sel.End = min(max(sel.Start, 0), n), min(max(sel.End, 0), n)
	if sel.End < sel.Start {
		sel.Start, sel.End = sel.End, sel.Start
	}
	if sel.Empty() {
		sel = textbuf.Selection{Start: 0, End: n}
	}
	return &ScriptState{
		doc:      doc,
		sel:      sel,
		fullText: doc.Text,
		text:     doc.Text[sel.Start:sel.End],
	}
}

func (s *ScriptState) FullText() string { return s.fullText }
func (s *ScriptState) Text() string     { return s.text }

func (s *ScriptState) SetFullText(v string) {
	s.fullText = v
	s.written[MutationReplaceDoc] = true
}

func (s *ScriptState) SetText(v string) {
	s.text = v
	s.written[MutationReplaceSelect] = true
}

// Lines splits the full text into lines.
func (s *ScriptState) Lines() []string { return strings.Split(s.fullText, "\n") }

// SetLines replaces the whole document with lines.
func (s *ScriptState) SetLines(lines []string) { s.SetFullText(strings.Join(lines, "\n")) }

// Selection is the range state.text was cut from.
func (s *ScriptState) Selection() textbuf.Selection { return s.sel }

// EOL is the file's line terminator, e.g. "\r\n".
func (s *ScriptState) EOL() string { return s.doc.EOL.Terminator() }

// Insert implements state.insert(text); the last call wins.
func (s *ScriptState) Insert(text string) {
	s.insert = text
	s.written[MutationInsertAtCursor] = true
}

// PostError implements state.postError(msg). It discards every write; only
// the first message is kept.
func (s *ScriptState) PostError(msg string) {
	if s.errMsg == nil {
		s.errMsg = &msg
	}
}

// PostInfo implements state.postInfo(msg), a status line that does not
// block writes. Only the first message is kept.
func (s *ScriptState) PostInfo(msg string) {
	if s.info == nil {
		s.info = &msg
	}
}

// Result resolves the recorded writes into at most one mutation.
func (s *ScriptState) Result(scriptName string) ExecutionResult {
	res := ExecutionResult{ScriptName: scriptName, Selection: s.sel}
	if s.errMsg != nil {
		res.ErrorMessage = *s.errMsg
		return res
	}
	res.Success = true
	if s.info != nil {
		res.InfoMessage = *s.info
	}
	for _, kind := range mutationOrder {
		if !s.written[kind] {
			continue
		}
		res.MutationKind = kind
		switch kind {
		case MutationReplaceSelect:
			res.NewText = s.text
		case MutationReplaceDoc:
			res.NewFullText = s.fullText
		case MutationInsertAtCursor:
			res.InsertText = s.insert
		}
		return res
	}
	return res
}
