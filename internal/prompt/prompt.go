// Package prompt renders the grounded-answer instruction prompt.
package prompt

import (
	"fmt"
	"strings"
)

// Fallback is the reply the generator is told to give when the excerpts do
// not answer the question.
const Fallback = "I'm sorry, but the provided context doesn't contain enough information to answer that."

const preamble = `You are a helpful and knowledgeable **financial analyst assistant** for CrediTrust.
You will be shown several excerpts from real customer complaints.

INSTRUCTIONS:
1. Use only the provided excerpts to answer the user's question.
2. Maintain a professional, analytical tone suitable for financial services.
3. If different excerpts contain conflicting information, note this in your response.
4. Start your reply with "Answer:" followed by your analysis.

IMPORTANT LIMITATIONS:
- If the answer cannot be found in the context, respond with:
  "` + Fallback + `"
- Never speculate or invent information beyond what's in the excerpts.

CONTEXT EXCERPTS:
`

// Build renders excerpts verbatim and in the given order as numbered,
// delimited blocks followed by the question. It is pure and deterministic.
func Build(excerpts []string, question string) string {
	var b strings.Builder
	b.WriteString(preamble)
	for i, ex := range excerpts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Excerpt %d:\n\"\"\"\n%s\n\"\"\"", i+1, ex)
	}
	if len(excerpts) == 0 {
		b.WriteString("(no excerpts)")
	}
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}
