package searcher_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t testing.TB, dir, sub, name string, v any) {
	t.Helper()
	path := filepath.Join(dir, sub)
	require.NoError(t, os.MkdirAll(path, 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, name), data, 0o644))
}

// pipeline loads scraped files, builds both indexes and returns an
// executor over them.
func pipeline(t testing.TB, songs int) (*executor.Executor, *catalog.MemoryStore) {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, dir, "artist_intro", "6452.json", map[string]any{
		"name":        "周杰伦",
		"alias":       []string{"Jay Chou"},
		"original_id": "6452",
		"intro":       map[string]any{"intro": "华语流行男歌手", "master work": []string{"晴天", "七里香"}},
	})
	writeJSON(t, dir, "artist_intro", "3684.json", map[string]any{
		"name":        "林俊杰",
		"original_id": "3684",
		"intro":       map[string]any{"intro": "新加坡男歌手"},
	})
	writeJSON(t, dir, "song_intro", "186016.json", map[string]any{
		"name":        "晴天",
		"original_id": "186016",
		"lyrics":      "故事的小黄花 从出生那年就飘着",
		"artists":     []map[string]string{{"name": "周杰伦", "original_id": "6452"}},
	})
	writeJSON(t, dir, "song_intro", "108914.json", map[string]any{
		"name":        "江南",
		"original_id": "108914",
		"lyrics":      "风到这里就是粘 粘住过客的思念",
		"artists":     []map[string]string{{"name": "林俊杰", "original_id": "3684"}},
	})
	for i := 0; i < songs; i++ {
		writeJSON(t, dir, "song_intro", fmt.Sprintf("filler%04d.json", i), map[string]any{
			"name":        fmt.Sprintf("小曲%d", i),
			"original_id": fmt.Sprintf("9%05d", i),
			"lyrics":      "天空 海洋 思念 故事",
		})
	}

	ctx := context.Background()
	cat := catalog.NewMemoryStore()
	_, err := loader.New(cat, nil).Load(ctx, loader.Options{SongDir: dir, ArtistDir: dir})
	require.NoError(t, err)

	idx := index.NewMemoryIndex()
	tok := tokenizer.New(nil)
	_, err = indexer.NewBuilder(cat, idx, tok, nil).BuildAll(ctx, indexer.BuildOptions{Clear: true})
	require.NoError(t, err)
	return executor.New(cat, idx, tok, executor.Config{}), cat
}

type searchResponse struct {
	State   parser.State `json:"state"`
	Results []struct {
		ID       int64 `json:"id"`
		Document struct {
			Name string `json:"name"`
		} `json:"document"`
	} `json:"results"`
}

func search(t *testing.T, mux *http.ServeMux, query, collection string) searchResponse {
	t.Helper()
	target := "/api/v1/search?query=" + url.QueryEscape(query) + "&collection=" + collection
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res searchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestLoadBuildSearch(t *testing.T) {
	exec, cat := pipeline(t, 0)
	mux := http.NewServeMux()
	handler.New(exec, cat, 20, handler.Options{}).Register(mux)

	res := search(t, mux, "晴天", "song")
	require.Equal(t, parser.StateOK, res.State)
	assert.Equal(t, "晴天", res.Results[0].Document.Name)

	// Songs are findable through their performer's name.
	res = search(t, mux, "林俊杰", "song")
	require.Equal(t, parser.StateOK, res.State)
	assert.Equal(t, "江南", res.Results[0].Document.Name)

	res = search(t, mux, "Jay Chou", "artist")
	require.Equal(t, parser.StateOK, res.State)
	assert.Equal(t, "周杰伦", res.Results[0].Document.Name)

	res = search(t, mux, "zzzz", "artist")
	assert.Equal(t, parser.StateNoResults, res.State)
}

func BenchmarkExecute(b *testing.B) {
	exec, _ := pipeline(b, 500)
	q, c := "思念的故事", "song"
	req := parser.Parse(&q, &c)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exec.Execute(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
