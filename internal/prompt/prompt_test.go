package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKeepsExcerptOrder(t *testing.T) {
	excerpts := []string{
		"charged twice for credit card",
		"loan application denied unfairly",
		"account closed without notice",
	}
	p := Build(excerpts, "Why are customers unhappy with credit cards?")

	last := -1
	for i, ex := range excerpts {
		block := "Excerpt " + string(rune('1'+i)) + ":\n\"\"\"\n" + ex + "\n\"\"\""
		pos := strings.Index(p, block)
		assert.Greater(t, pos, last, "excerpt %d out of order", i+1)
		last = pos
	}
	assert.NotContains(t, p, "Excerpt 4:")
}

func TestBuildStructure(t *testing.T) {
	p := Build([]string{"late fee charged"}, " What fees? ")

	assert.True(t, strings.HasPrefix(p, "You are a helpful and knowledgeable **financial analyst assistant** for CrediTrust."))
	assert.Contains(t, p, Fallback)
	assert.Contains(t, p, "Use only the provided excerpts")
	assert.Contains(t, p, "Excerpt 1:\n\"\"\"\nlate fee charged\n\"\"\"")
	assert.True(t, strings.HasSuffix(p, "QUESTION:\nWhat fees?"), "question comes last")
	assert.Less(t, strings.Index(p, "CONTEXT EXCERPTS:"), strings.Index(p, "Excerpt 1:"))
}

func TestBuildRendersExcerptsVerbatim(t *testing.T) {
	p := Build([]string{"fee charged. \n"}, "q")
	assert.Contains(t, p, "Excerpt 1:\n\"\"\"\nfee charged. \n\n\"\"\"")
}

func TestBuildIsDeterministic(t *testing.T) {
	ex := []string{"a", "b"}
	assert.Equal(t, Build(ex, "q"), Build(ex, "q"))
}

func TestBuildWithoutExcerpts(t *testing.T) {
	p := Build(nil, "q")
	assert.NotContains(t, p, "Excerpt 1:")
	assert.Contains(t, p, "(no excerpts)")
}
