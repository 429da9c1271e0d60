package pipeline

import (
	"strings"
	"testing"
)

func TestFirstLine_SkipsBlankAndShortLines(t *testing.T) {
	text := "\n  \nhi\nIntroduction to Biology\nmore text"
	got := firstLine(text)
	if got != "Introduction to Biology" {
		t.Fatalf("firstLine = %q, want %q", got, "Introduction to Biology")
	}
}

func TestFirstLine_EmptyWhenNoSubstantiveLine(t *testing.T) {
	if got := firstLine("\n \n a \n"); got != "" {
		t.Fatalf("firstLine = %q, want empty", got)
	}
}

func TestPickThumbnailSubject_PrefersExtractedText(t *testing.T) {
	pages := []extractedPage{{Number: 1, Text: "Organic Chemistry Volume II"}}
	got := pickThumbnailSubject(pages, "some_upload_07.pdf")
	if got != "Organic Chemistry Volume II" {
		t.Fatalf("pickThumbnailSubject = %q, want extracted text", got)
	}
}

func TestPickThumbnailSubject_FallsBackToFilenameStem(t *testing.T) {
	pages := []extractedPage{{Number: 1, Text: "\n \n"}}
	got := pickThumbnailSubject(pages, "intro-to-biology_v2.pdf")
	want := "intro to biology v2"
	if got != want {
		t.Fatalf("pickThumbnailSubject = %q, want %q", got, want)
	}
}

func TestPickThumbnailSubject_FallsBackToGenericWhenFilenameEmpty(t *testing.T) {
	got := pickThumbnailSubject(nil, ".pdf")
	if got != "a textbook cover" {
		t.Fatalf("pickThumbnailSubject = %q, want generic fallback", got)
	}
}

func TestThumbnailPrompt_MentionsSubjectAndExcludesText(t *testing.T) {
	prompt := thumbnailPrompt("Algebra II")
	if !strings.Contains(prompt, "Algebra II") {
		t.Fatalf("prompt missing subject: %q", prompt)
	}
	if !strings.Contains(prompt, "No text") {
		t.Fatalf("prompt missing no-text instruction: %q", prompt)
	}
}
