package tokenizer

import (
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeWordsThenCharacters(t *testing.T) {
	tok := New(RuneSegmenter{})
	got := tok.Tokenize("sun sun moon")
	want := []string{
		"sun", "sun", "moon",
		"s", "u", "n", "s", "u", "n", "m", "o", "o", "n",
	}
	assert.Equal(t, want, got)
}

func TestTokenizeDropsPunctuation(t *testing.T) {
	tok := New(RuneSegmenter{})
	got := tok.Tokenize("晴天，（刮风）！\n“a”")
	assert.Equal(t, []string{"晴天", "刮风", "晴", "天", "刮", "风", "a"}, got)
}

func TestTokenizeKeepsUnlistedSymbols(t *testing.T) {
	tok := New(RuneSegmenter{})
	got := tok.Tokenize("A—B")
	assert.Equal(t, []string{"A", "—", "B"}, got)
}

func TestTokenizeNoCaseFolding(t *testing.T) {
	tok := New(nil)
	assert.NotEqual(t, tok.Tokenize("Moon"), tok.Tokenize("moon"))
}

func TestTokenizeEmpty(t *testing.T) {
	tok := New(RuneSegmenter{})
	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize(" ,。\n"))
}

func TestBigramSegmenter(t *testing.T) {
	got := BigramSegmenter{}.Segment("华语流行歌手，Jay周杰伦2024 晴天")
	assert.Equal(t, []string{
		"华语", "语流", "流行", "行歌", "歌手",
		"Jay", "周杰", "杰伦", "2024",
		"晴天",
	}, got)
}

func TestDefaultTokenizerBreaksHanRuns(t *testing.T) {
	got := New(nil).Tokenize("华语流行男歌手")
	assert.Contains(t, got, "流行")
	assert.Contains(t, got, "歌手")
	assert.NotContains(t, got, "华语流行男歌手")
}

func TestDefaultDictionarySegmentsSentences(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the full segmentation dictionary")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	seg, err := NewSegoSegmenter(filepath.Join("..", "..", "..", cfg.Indexer.DictPath))
	require.NoError(t, err)

	got := New(seg).Tokenize("故事的小黄花从出生那年就飘着")
	assert.Contains(t, got, "故事")
	assert.Contains(t, got, "出生")
	assert.NotContains(t, got, "故事的小黄花从出生那年就飘着")
}

type fixedSegmenter []string

func (f fixedSegmenter) Segment(string) []string { return f }

func TestTokenizeFiltersShortSegments(t *testing.T) {
	tok := New(fixedSegmenter{" 晴天 ", "的", "  ", "x"})
	got := tok.Tokenize("晴天")
	assert.Equal(t, []string{"晴天", "晴", "天"}, got)
}

func TestSegoSegmenter(t *testing.T) {
	seg, err := NewSegoSegmenter("testdata/dict.txt")
	require.NoError(t, err)

	got := New(seg).Tokenize("故事的小黄花")
	assert.Contains(t, got, "故事")
	assert.Contains(t, got, "小黄花")
	assert.Contains(t, got, "的")
	assert.Contains(t, got, "黄花", "search mode adds sub-words of longer words")
	assert.Equal(t, 1, count(got, "黄"), "single-rune words come only from the character pass")
}

func TestSegoSegmenterKeepsCase(t *testing.T) {
	seg, err := NewSegoSegmenter("testdata/dict.txt")
	require.NoError(t, err)
	tok := New(seg)

	got := tok.Tokenize("Moon River")
	assert.Contains(t, got, "Moon")
	assert.Contains(t, got, "River")
	assert.NotContains(t, got, "moon")
	assert.NotContains(t, got, "river")

	got = tok.Tokenize("实行AA制")
	assert.Contains(t, got, "AA制")
	assert.NotContains(t, got, "aa制")

	assert.NotEqual(t, tok.Tokenize("Moon"), tok.Tokenize("moon"))
}

func TestSegoSegmenterMissingDictionary(t *testing.T) {
	_, err := NewSegoSegmenter("testdata/missing.txt")
	assert.Error(t, err)
	_, err = NewSegoSegmenter("")
	assert.Error(t, err)
}

func count(tokens []string, want string) int {
	n := 0
	for _, tk := range tokens {
		if tk == want {
			n++
		}
	}
	return n
}

func BenchmarkTokenize(b *testing.B) {
	tok := New(RuneSegmenter{})
	text := "故事的小黄花 从出生那年就飘着 童年的荡秋千 随记忆一直晃到现在"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tok.Tokenize(text)
	}
}
