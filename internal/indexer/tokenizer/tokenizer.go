// Package tokenizer turns raw song and artist text into index tokens: the
// multi-character words of a segmenter pass followed by every meaningful
// single character of the input.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter breaks text into candidate words. Implementations must be safe
// for concurrent use.
type Segmenter interface {
	Segment(text string) []string
}

// excluded holds the punctuation and whitespace runes that never become
// single-character tokens. Both ASCII and full-width forms are listed.
var excluded = map[rune]struct{}{
	',': {}, ' ': {}, '.': {}, '"': {}, '\'': {}, '，': {}, '‘': {}, '’': {},
	'“': {}, '”': {}, '。': {}, ':': {}, '：': {}, '\n': {}, '\r': {}, '\t': {},
	'?': {}, '？': {}, '!': {}, '！': {}, '(': {}, ')': {}, '（': {}, '）': {},
	'-': {}, ';': {}, '；': {},
}

type Tokenizer struct {
	seg Segmenter
}

// New returns a Tokenizer using seg for the word pass. A nil seg falls back
// to BigramSegmenter.
func New(seg Segmenter) *Tokenizer {
	if seg == nil {
		seg = BigramSegmenter{}
	}
	return &Tokenizer{seg: seg}
}

// Tokenize returns the segmenter words longer than one rune, trimmed, then
// one token per non-excluded rune of text. Tokens repeat as often as they
// occur and are not case-folded.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	words := t.seg.Segment(text)
	tokens := make([]string, 0, len(words)+utf8.RuneCountInString(text))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if utf8.RuneCountInString(w) > 1 {
			tokens = append(tokens, w)
		}
	}
	for _, r := range text {
		if _, skip := excluded[r]; skip {
			continue
		}
		tokens = append(tokens, string(r))
	}
	return tokens
}

// RuneSegmenter splits on every rune that is neither a letter nor a digit.
type RuneSegmenter struct{}

func (RuneSegmenter) Segment(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// BigramSegmenter is the dictionary-free word breaker. Runs of Han
// characters become overlapping two-character words, so "华语流行" yields
// 华语, 语流 and 流行. Other letter and digit runs are kept whole. A Han run
// of two characters or fewer is its own word.
type BigramSegmenter struct{}

func (BigramSegmenter) Segment(text string) []string {
	var words []string
	for _, run := range (RuneSegmenter{}).Segment(text) {
		words = appendScriptRuns(words, run)
	}
	return words
}

// appendScriptRuns splits run at every boundary between Han and non-Han
// runes and adds the pieces.
func appendScriptRuns(words []string, run string) []string {
	start := 0
	han := false
	for i, r := range run {
		isHan := unicode.Is(unicode.Han, r)
		if i > start && isHan != han {
			words = appendPiece(words, run[start:i], han)
			start = i
		}
		han = isHan
	}
	return appendPiece(words, run[start:], han)
}

func appendPiece(words []string, piece string, han bool) []string {
	if piece == "" {
		return words
	}
	runes := []rune(piece)
	if !han || len(runes) <= 2 {
		return append(words, piece)
	}
	for i := 0; i+1 < len(runes); i++ {
		words = append(words, string(runes[i:i+2]))
	}
	return words
}
