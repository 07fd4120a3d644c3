// Package assembler flattens a song or artist record into the token
// multiset the index is built from.
package assembler

import (
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
)

type Tokenizer interface {
	Tokenize(text string) []string
}

// Song tokenizes name, alias, lyrics and every linked artist's name, in
// that order. Linked artist names make a song findable by its performers.
func Song(tok Tokenizer, s *catalog.Song) []string {
	tokens := tok.Tokenize(s.Name)
	if s.Alias != nil {
		tokens = append(tokens, tok.Tokenize(*s.Alias)...)
	}
	tokens = append(tokens, tok.Tokenize(s.Lyrics)...)
	for _, a := range s.Artists {
		tokens = append(tokens, tok.Tokenize(a.Name)...)
	}
	return tokens
}

// Artist tokenizes name, aliases, intro, history, master works and
// milestones, skipping absent fields. List entries are tokenized one by one.
func Artist(tok Tokenizer, a *catalog.Artist) []string {
	tokens := tok.Tokenize(a.Name)
	for _, alias := range a.Alias {
		tokens = append(tokens, tok.Tokenize(alias)...)
	}
	if a.Intro != nil {
		tokens = append(tokens, tok.Tokenize(*a.Intro)...)
	}
	if a.History != nil {
		tokens = append(tokens, tok.Tokenize(*a.History)...)
	}
	for _, work := range a.MasterWorks {
		tokens = append(tokens, tok.Tokenize(work)...)
	}
	for _, m := range a.Milestones {
		tokens = append(tokens, tok.Tokenize(m)...)
	}
	return tokens
}

// TermFrequencies counts each token's occurrences.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
