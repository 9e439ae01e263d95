// Package tokenizer provides text tokenisation for the research engine.
// It lower-cases input, splits on non-alphanumeric boundaries and drops
// tokens of two characters or fewer. Chunk splits text into overlapping
// word windows for the vector index.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest term kept by Tokenize.
const MinTokenLength = 3

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"there": {}, "been": {}, "would": {}, "could": {}, "should": {},
	"into": {}, "than": {}, "then": {}, "them": {}, "these": {},
	"those": {}, "also": {}, "only": {}, "other": {}, "some": {},
	"such": {}, "more": {}, "most": {}, "very": {}, "just": {},
	"all": {}, "any": {}, "our": {}, "you": {}, "your": {},
	"how": {}, "why": {}, "about": {}, "over": {}, "use": {},
	"used": {}, "using": {}, "does": {}, "did": {}, "may": {},
	"her": {}, "his": {}, "she": {}, "him": {}, "out": {},
	"get": {}, "set": {}, "new": {}, "one": {}, "two": {},
}

// Token represents a single normalised term and its position in the
// original token stream.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lowercased alphanumeric Tokens longer than two
// characters. Punctuation separates tokens and is discarded.
func Tokenize(text string) []Token {
	words := split(text)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if utf8.RuneCountInString(word) < MinTokenLength {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Tokenize without positions.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// TermCounts returns the frequency of every term in tokens.
func TermCounts(tokens []Token) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok.Term]++
	}
	return counts
}

// UniqueTerms returns the distinct terms of text in first-seen order.
func UniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range Terms(text) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// IsStopWord reports whether term is in the fixed English stop-word set.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// Chunk splits text on word boundaries into windows of size words. Each
// window after the first repeats the last overlap words of its predecessor.
// Text with no more than size words yields exactly one chunk, and empty
// text yields a single empty chunk.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if size <= 0 || len(words) <= size {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 {
		overlap = 0
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

func split(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
