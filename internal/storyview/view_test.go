package storyview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphs(t *testing.T) {
	tests := []struct {
		name  string
		story string
		want  []string
	}{
		{name: "two paragraphs", story: "First.\n\nSecond.", want: []string{"First.", "Second."}},
		{name: "crlf", story: "First.\r\n\r\nSecond.", want: []string{"First.", "Second."}},
		{name: "extra blank lines", story: "\n\nOne.\n\n\n\n  Two.  \n\n", want: []string{"One.", "Two."}},
		{name: "single newline stays", story: "Line one\nline two", want: []string{"Line one\nline two"}},
		{name: "empty", story: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Paragraphs(tt.story))
		})
	}
}

func TestPresentStates(t *testing.T) {
	assert.Equal(t, StateLoading, Present("old story", true, 3).State)
	assert.Equal(t, StateEmpty, Present("", false, 0).State)
	assert.Equal(t, StateEmpty, Present("\n\n", false, 2).State)

	v := Present("First.\n\nSecond.", false, 3)
	assert.Equal(t, StateStory, v.State)
	assert.Equal(t, []string{"First.", "Second."}, v.Paragraphs)
	assert.Equal(t, 3, v.ImageCount)
}

func TestViewText(t *testing.T) {
	t.Run("story", func(t *testing.T) {
		text := Present("First.\n\nSecond.", false, 3).Text()
		assert.Contains(t, text, "Generated from 3 images")
		assert.Contains(t, text, StoryClosing)
		first := strings.Index(text, "First.")
		second := strings.Index(text, "Second.")
		require.True(t, first >= 0 && second > first)
	})

	t.Run("single image", func(t *testing.T) {
		assert.Contains(t, Present("x", false, 1).Text(), "Generated from 1 image\n")
	})

	t.Run("loading", func(t *testing.T) {
		assert.Contains(t, Present("", true, 2).Text(), LoadingTitle)
	})

	t.Run("empty with photos", func(t *testing.T) {
		text := Present("", false, 2).Text()
		assert.Contains(t, text, EmptyTitle)
		assert.Contains(t, text, "2 photos ready")
	})

	t.Run("empty without photos", func(t *testing.T) {
		assert.NotContains(t, Present("", false, 0).Text(), "ready")
	})
}

func TestPhotoCount(t *testing.T) {
	assert.Equal(t, "0 photos", PhotoCount(0))
	assert.Equal(t, "1 photo", PhotoCount(1))
	assert.Equal(t, "5 photos", PhotoCount(5))
}

func TestMarkdown(t *testing.T) {
	md, ok := Present("Arthur woke.\n\nHe rode out.", false, 3).Markdown()
	require.True(t, ok)
	assert.Equal(t, "# Your Story\n\n_Generated from 3 images_\n\nArthur woke.\n\nHe rode out.\n\n~ The End ~\n", md)

	md, ok = Present("Alone.", false, 1).Markdown()
	require.True(t, ok)
	assert.Contains(t, md, "Generated from 1 image_")

	_, ok = Present("", false, 2).Markdown()
	assert.False(t, ok)
	_, ok = Present("Old story", true, 2).Markdown()
	assert.False(t, ok)
}
