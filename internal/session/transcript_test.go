package session

import (
	"testing"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

func TestAssemblerInterimThenFinal(t *testing.T) {
	var a Assembler
	a.Start()

	a.Apply(protocol.Transcript{Text: "hel"})
	a.Apply(protocol.Transcript{Text: "hello"})
	a.Apply(protocol.Transcript{Text: "hello", IsFinal: true})

	if a.Final() != "hello" || a.Interim() != "" {
		t.Fatalf("expected final hello and empty interim, got %q / %q", a.Final(), a.Interim())
	}

	a.Apply(protocol.Transcript{Text: "wor"})
	a.Apply(protocol.Transcript{Text: "world", IsFinal: true})
	if a.Final() != "hello world" {
		t.Fatalf("expected joined final, got %q", a.Final())
	}
}

func TestAssemblerContentIsSnapshot(t *testing.T) {
	var a Assembler
	a.Start()
	a.Apply(protocol.Transcript{Text: "one", IsFinal: true})
	a.Apply(protocol.Transcript{Text: "tw"})

	a.Apply(protocol.Transcript{Content: protocol.Text("corrected text"), Text: "ignored", IsFinal: false})
	if a.Final() != "corrected text" || a.Interim() != "" {
		t.Fatalf("expected content to replace everything, got %q / %q", a.Final(), a.Interim())
	}

	a.Apply(protocol.Transcript{Content: protocol.Text("")})
	if a.Final() != "" {
		t.Fatalf("expected empty content to clear final, got %q", a.Final())
	}
}

func TestAssemblerEmptyFinalClearsInterimOnly(t *testing.T) {
	var a Assembler
	a.Start()
	a.Apply(protocol.Transcript{Text: "kept", IsFinal: true})
	a.Apply(protocol.Transcript{Text: "pending"})
	a.Apply(protocol.Transcript{Text: "   ", IsFinal: true})

	if a.Final() != "kept" || a.Interim() != "" {
		t.Fatalf("expected final kept and empty interim, got %q / %q", a.Final(), a.Interim())
	}
}

func TestAssemblerFinalIsTrimmed(t *testing.T) {
	var a Assembler
	a.Apply(protocol.Transcript{Text: "  padded  ", IsFinal: true})
	if a.Final() != "padded" {
		t.Fatalf("expected trimmed final, got %q", a.Final())
	}
}

func TestAssemblerStartAndFinish(t *testing.T) {
	var a Assembler
	a.Apply(protocol.Transcript{Text: "old", IsFinal: true})
	a.Start()
	if a.Text() != "" {
		t.Fatalf("expected Start to clear, got %q", a.Text())
	}

	a.Apply(protocol.Transcript{Text: "draft", IsFinal: true})
	a.Apply(protocol.Transcript{Text: "tail"})
	if a.Text() != "draft tail" {
		t.Fatalf("expected combined text, got %q", a.Text())
	}

	a.Finish(&protocol.FinishedSession{ID: "s1", Content: "server final"})
	if a.Final() != "server final" || a.Interim() != "" {
		t.Fatalf("expected server record to win, got %q / %q", a.Final(), a.Interim())
	}

	a.Finish(nil)
	if a.Final() != "server final" {
		t.Fatalf("expected Finish(nil) to keep final, got %q", a.Final())
	}
}
