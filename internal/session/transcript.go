package session

import (
	"strings"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

// Assembler folds transcript events into committed and interim text.
type Assembler struct {
	final   string
	interim string
}

func (a *Assembler) Start() {
	a.final = ""
	a.interim = ""
}

func (a *Assembler) Apply(t protocol.Transcript) {
	if t.Content != nil {
		a.final = *t.Content
		a.interim = ""
		return
	}

	if !t.IsFinal {
		a.interim = t.Text
		return
	}

	a.interim = ""
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return
	}
	if a.final == "" {
		a.final = text
		return
	}
	a.final = a.final + " " + text
}

// Finish adopts the server's final record when one is attached.
func (a *Assembler) Finish(record *protocol.FinishedSession) {
	a.interim = ""
	if record != nil {
		a.final = record.Content
	}
}

func (a *Assembler) Final() string   { return a.final }
func (a *Assembler) Interim() string { return a.interim }

// Text is the committed text followed by any interim text.
func (a *Assembler) Text() string {
	switch {
	case a.interim == "":
		return a.final
	case a.final == "":
		return a.interim
	default:
		return a.final + " " + a.interim
	}
}
