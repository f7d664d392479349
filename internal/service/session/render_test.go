package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSummary(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Stay disciplined. Train daily! Eat clean?", []string{"Stay disciplined.", "Train daily!", "Eat clean?"}},
		{"Run three times a week. Sleep eight hours.", []string{"Run three times a week.", "Sleep eight hours."}},
		{"  Version 2.5 is out.  Upgrade now  ", []string{"Version 2.5 is out.", "Upgrade now"}},
		{"Wait...  what?\nYes.", []string{"Wait...", "what?", "Yes."}},
		{"", nil},
		{"   ", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SplitSummary(tc.in), tc.in)
	}
}

func TestResolveEmbed(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":              "https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=10s":           "https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://m.youtube.com/watch?feature=share&v=a_b-c123456": "https://www.youtube.com/embed/a_b-c123456",
		"https://youtu.be/dQw4w9WgXcQ?si=xyz":                     "https://www.youtube.com/embed/dQw4w9WgXcQ",
		"www.youtube.com/watch?v=dQw4w9WgXcQ":                     "https://www.youtube.com/embed/dQw4w9WgXcQ",
		"youtu.be/dQw4w9WgXcQ":                                    "https://www.youtube.com/embed/dQw4w9WgXcQ",
		"  youtube.com/shorts/a_b-c123456/ ":                      "https://www.youtube.com/embed/a_b-c123456",
	}
	for in, want := range cases {
		got, ok := ResolveEmbed(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{
		"https://example.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=a_b-c1234",
		"example.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/channel/dQw4w9WgXcQ",
		"https://youtu.be/",
		"not a url",
		"",
	} {
		_, ok := ResolveEmbed(in)
		assert.False(t, ok, in)
	}
}

func TestEmbedsForKeepsOrderAndIndex(t *testing.T) {
	refs := []string{"https://example.com", "https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/shorts/a_b-c123456"}
	embeds := embedsFor(refs, func(index int) bool { return index == 2 })

	if assert.Len(t, embeds, 2) {
		assert.Equal(t, 1, embeds[0].Index)
		assert.False(t, embeds[0].Expanded)
		assert.Equal(t, 2, embeds[1].Index)
		assert.True(t, embeds[1].Expanded)
	}

	one := embedsFor([]string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "https://example.com/page"}, func(int) bool { return false })
	assert.Len(t, one, 1)
}
