package storyview

import (
	"fmt"
	"strings"
)

type State string

const (
	StateLoading State = "loading"
	StateStory   State = "story"
	StateEmpty   State = "empty"
)

const (
	LoadingTitle   = "Weaving your narrative..."
	LoadingHint    = "Our AI is analyzing your images and crafting a unique story"
	EmptyTitle     = "Your Story Awaits"
	EmptyHint      = "Upload images and click \"Generate Story\" to create your narrative"
	StoryTitle     = "Your Story"
	StoryClosing   = "~ The End ~"
	ReadyPhotoHint = "ready • Continue to generate your story"
)

// View is what the story panel shows. Exactly one State applies.
type View struct {
	State      State    `json:"state"`
	Paragraphs []string `json:"paragraphs,omitempty"`
	ImageCount int      `json:"image_count"`
}

// Present picks the panel state. Loading wins over a stored story.
func Present(story string, loading bool, imageCount int) View {
	if imageCount < 0 {
		imageCount = 0
	}
	if loading {
		return View{State: StateLoading, ImageCount: imageCount}
	}
	if paragraphs := Paragraphs(story); len(paragraphs) > 0 {
		return View{State: StateStory, Paragraphs: paragraphs, ImageCount: imageCount}
	}
	return View{State: StateEmpty, ImageCount: imageCount}
}

// Paragraphs splits story text on blank lines. Empty segments are dropped.
func Paragraphs(story string) []string {
	story = strings.ReplaceAll(story, "\r\n", "\n")
	var out []string
	for _, part := range strings.Split(story, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// PhotoCount renders "1 photo" / "N photos".
func PhotoCount(n int) string {
	if n == 1 {
		return "1 photo"
	}
	return fmt.Sprintf("%d photos", n)
}

func imageCount(n int) string {
	if n == 1 {
		return "1 image"
	}
	return fmt.Sprintf("%d images", n)
}

// Text renders the view as plain chat text.
func (v View) Text() string {
	var b strings.Builder
	switch v.State {
	case StateLoading:
		b.WriteString("⏳ ")
		b.WriteString(LoadingTitle)
		b.WriteString("\n")
		b.WriteString(LoadingHint)
	case StateStory:
		b.WriteString("📖 ")
		b.WriteString(StoryTitle)
		b.WriteString("\n")
		fmt.Fprintf(&b, "Generated from %s\n", imageCount(v.ImageCount))
		for _, p := range v.Paragraphs {
			b.WriteString("\n")
			b.WriteString(p)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(StoryClosing)
	default:
		b.WriteString("✨ ")
		b.WriteString(EmptyTitle)
		b.WriteString("\n")
		b.WriteString(EmptyHint)
		if v.ImageCount > 0 {
			fmt.Fprintf(&b, "\n\n%s %s", PhotoCount(v.ImageCount), ReadyPhotoHint)
		}
	}
	return b.String()
}

// ExportName is the file name offered for a downloaded story.
const ExportName = "story.md"

// Markdown renders a finished story as a printable markdown document. It
// reports false unless the view is in the story state.
func (v View) Markdown() (string, bool) {
	if v.State != StateStory {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", StoryTitle)
	fmt.Fprintf(&b, "_Generated from %s_\n", imageCount(v.ImageCount))
	for _, p := range v.Paragraphs {
		b.WriteString("\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s\n", StoryClosing)
	return b.String(), true
}
