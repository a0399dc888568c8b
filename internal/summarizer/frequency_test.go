package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestPrefersRecurringThemes(t *testing.T) {
	s := NewFrequencySummarizer()
	excerpts := []string{
		"The late fee was charged twice. I called on Monday.",
		"Another late fee appeared on my statement. The weather was nice.",
	}
	got := s.Digest(excerpts, 2)
	require.Len(t, got, 2)
	assert.Equal(t, KeySentence{Text: "The late fee was charged twice.", Source: 0}, got[0])
	assert.Equal(t, KeySentence{Text: "Another late fee appeared on my statement.", Source: 1}, got[1])
}

func TestDigestEdgeCases(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Empty(t, s.Digest(nil, 3))
	assert.Empty(t, s.Digest([]string{"", "the and of"}, 3))
	assert.Len(t, s.Digest([]string{"One fee. Two fees. Three fees. Four fees."}, 0), 3, "non-positive max uses the default")
}

func TestDigestKeepsOriginalOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	got := s.Digest([]string{"Overdraft fees hurt. Unrelated chatter here. Overdraft fees again and fees."}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "Overdraft fees hurt.", got[0].Text)
	assert.Equal(t, "Overdraft fees again and fees.", got[1].Text)
}
