package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	tokenRe    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// KeySentence is one sentence picked for a digest, with the 0-based index of
// the excerpt it came from.
type KeySentence struct {
	Text   string
	Source int
}

// FrequencySummarizer ranks sentences by how many frequent content words
// they contain.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords()}
}

// Digest picks up to maxSentences key sentences across excerpts. Word
// frequencies are pooled over all excerpts so recurring complaint themes
// score highest. Results keep excerpt order, then sentence order.
func (s *FrequencySummarizer) Digest(excerpts []string, maxSentences int) []KeySentence {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	type candidate struct {
		KeySentence
		order  int
		tokens []string
		score  float64
	}
	var cands []candidate
	freq := map[string]float64{}
	for src, ex := range excerpts {
		for _, raw := range sentenceRe.FindAllString(ex, -1) {
			sent := strings.TrimSpace(raw)
			toks := s.contentTokens(sent)
			if len(toks) == 0 {
				continue
			}
			for _, t := range toks {
				freq[t]++
			}
			cands = append(cands, candidate{
				KeySentence: KeySentence{Text: sent, Source: src},
				order:       len(cands),
				tokens:      toks,
			})
		}
	}
	if len(cands) == 0 {
		return nil
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for i := range cands {
		for _, t := range cands[i].tokens {
			cands[i].score += freq[t] / maxF
		}
		// dampen long sentences
		cands[i].score /= math.Sqrt(float64(len(cands[i].tokens)))
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if maxSentences < len(cands) {
		cands = cands[:maxSentences]
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].order < cands[j].order })

	out := make([]KeySentence, len(cands))
	for i, c := range cands {
		out[i] = c.KeySentence
	}
	return out
}

func (s *FrequencySummarizer) contentTokens(text string) []string {
	all := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, t := range all {
		if _, stop := s.stopwords[t]; !stop && len(t) > 1 {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "my", "me", "we", "our", "they", "them", "their", "he", "she", "his", "her", "you", "your", "have", "has", "had", "not", "no", "did", "do", "xxxx",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
