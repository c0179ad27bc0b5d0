package chunker

import "strings"

// charsPerToken is the rough ratio the embedding model's tokenizer averages
// for English prose. Token counts derived from it are approximate but
// deterministic for a given input.
const charsPerToken = 4

// TokenChunker splits text into consecutive non-overlapping windows of at
// most maxTokens approximate tokens.
type TokenChunker struct{}

func NewTokenChunker() *TokenChunker { return &TokenChunker{} }

// Split slices the word stream of text into windows whose summed token cost
// never exceeds maxTokens. The last window may be shorter. Empty or
// whitespace-only input yields no chunks.
func (c *TokenChunker) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	var cur []string
	budget := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = cur[:0]
			budget = 0
		}
	}
	for _, w := range words {
		cost := tokenCost(w)
		if cost > maxTokens {
			// A single word over the window budget is hard-split so no
			// chunk can exceed the embedding input limit.
			flush()
			for _, piece := range splitWord(w, maxTokens*charsPerToken) {
				chunks = append(chunks, piece)
			}
			continue
		}
		if budget+cost > maxTokens {
			flush()
		}
		cur = append(cur, w)
		budget += cost
	}
	flush()
	return chunks
}

// tokenCost approximates the tokenizer cost of a single word.
func tokenCost(word string) int {
	n := len([]rune(word))
	cost := (n + charsPerToken - 1) / charsPerToken
	if cost < 1 {
		cost = 1
	}
	return cost
}

func splitWord(word string, maxRunes int) []string {
	runes := []rune(word)
	var out []string
	for len(runes) > maxRunes {
		out = append(out, string(runes[:maxRunes]))
		runes = runes[maxRunes:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
