package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingText_SkipsEmptyFields(t *testing.T) {
	opportunity := &Opportunity{
		Title:    "STEM Scholarship",
		Summary:  "  ",
		Category: "stem",
	}
	assert.Equal(t, "STEM Scholarship\nstem", opportunity.EmbeddingText())

	empty := &Opportunity{ID: "opp-1"}
	assert.Equal(t, "", empty.EmbeddingText())
}

func TestContentHash_ChangesWithContent(t *testing.T) {
	a := &Opportunity{ID: "opp-1", Title: "STEM Scholarship"}
	b := &Opportunity{ID: "opp-1", Title: "STEM Scholarship"}
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	b.Summary = "now with a summary"
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestFeedbackSignal_Classification(t *testing.T) {
	assert.True(t, SignalHelpful.Valid())
	assert.False(t, FeedbackSignal("meh").Valid())

	assert.True(t, SignalSomewhatHelpful.IsExplicitRating())
	assert.False(t, SignalClicked.IsExplicitRating())

	assert.True(t, SignalSomewhatHelpful.IsPositive())
	assert.False(t, SignalNotHelpful.IsPositive())
}
