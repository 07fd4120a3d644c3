package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/huichen/sego"
)

// SegoSegmenter is a dictionary-driven CJK word breaker run in search mode,
// so long words also yield the shorter dictionary words they contain.
type SegoSegmenter struct {
	seg sego.Segmenter
}

// NewSegoSegmenter loads one or more comma-separated dictionary files. Each
// line is "word frequency [pos]".
func NewSegoSegmenter(dictPaths string) (*SegoSegmenter, error) {
	if strings.TrimSpace(dictPaths) == "" {
		return nil, fmt.Errorf("no segmentation dictionary given")
	}
	// sego exits the process on an unreadable file, so check up front.
	for _, p := range strings.Split(dictPaths, ",") {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("segmentation dictionary: %w", err)
		}
	}
	s := &SegoSegmenter{}
	s.seg.LoadDictionary(dictPaths)
	return s, nil
}

// Segment returns the search-mode words of text in the order sego reports
// them, finer sub-words before the word containing them. Words are cut from
// text by byte offset because sego lower-cases latin letters in the words
// it returns.
func (s *SegoSegmenter) Segment(text string) []string {
	var words []string
	for _, seg := range s.seg.Segment([]byte(text)) {
		words = appendWords(words, text, seg.Start(), seg.End(), seg.Token())
	}
	return words
}

// appendWords adds tok, spanning text[start:end], and its sub-words. Sub-word
// offsets are relative to the start of the enclosing word. A word whose
// sub-words are all terminal contributes only itself.
func appendWords(words []string, text string, start, end int, tok *sego.Token) []string {
	if start < 0 || end > len(text) || start > end {
		return append(words, tok.Text())
	}
	nested := false
	for _, sub := range tok.Segments() {
		if sub != nil && len(sub.Token().Segments()) > 1 {
			nested = true
			break
		}
	}
	if nested {
		for _, sub := range tok.Segments() {
			if sub == nil {
				continue
			}
			words = appendWords(words, text, start+sub.Start(), start+sub.End(), sub.Token())
		}
	}
	return append(words, text[start:end])
}
