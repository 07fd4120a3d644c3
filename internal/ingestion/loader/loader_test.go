package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func writeFile(t *testing.T, dir, sub, name, body string) {
	t.Helper()
	path := filepath.Join(dir, sub)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, name), []byte(body), 0o644))
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, artistIntroDir, "6452.json", `{
		"name": "周杰伦",
		"alias": ["Jay Chou", " "],
		"original_id": "6452",
		"intro": {"intro": "华语流行歌手", "history": "2000年出道", "master work": ["晴天"], "milestones": ["2000 Jay"]}
	}`)
	writeFile(t, dir, artistIntroDir, "nourl.json", `{"name": "无名", "intro": {}}`)
	writeFile(t, dir, songIntroDir, "186016.json", `{
		"name": "晴天",
		"original_id": "186016",
		"lyrics": "故事的小黄花",
		"artists": [{"name": "周杰伦", "original_id": "6452"}, {"name": "客串"}]
	}`)
	writeFile(t, dir, songIntroDir, "bad.json", `{"name": "", "original_id": "1"}`)
	writeFile(t, dir, songIntroDir, "186001.json", `{"name": "七里香", "original_id": "186001", "lyrics": "窗外的麻雀", "artists": []}`)
	writeFile(t, dir, artistSongIDsDir, "artist6452songs.json", `[186016, "186001", 999]`)
	return dir
}

func TestLoad(t *testing.T) {
	dir := fixture(t)
	store := catalog.NewMemoryStore()
	ctx := context.Background()

	report, err := New(store, nil).Load(ctx, Options{SongDir: dir, ArtistDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Artists)
	assert.Equal(t, 1, report.StubArtists)
	assert.Equal(t, 2, report.Songs)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.UnknownSongs)
	assert.Equal(t, 4, report.Links)

	jay, err := store.ArtistByOriginalID(ctx, "6452")
	require.NoError(t, err)
	assert.True(t, jay.Eligible())
	assert.Equal(t, "https://music.163.com/artist?id=6452", *jay.OriginalURL)
	assert.Equal(t, []string{"Jay Chou"}, jay.Alias)
	assert.Equal(t, []string{"晴天"}, jay.MasterWorks)

	unnamed, err := store.ArtistByName(ctx, "无名")
	require.NoError(t, err)
	assert.False(t, unnamed.Eligible())

	guest, err := store.ArtistByName(ctx, "客串")
	require.NoError(t, err)
	assert.False(t, guest.Eligible())

	n, err := store.CountEligible(ctx, catalog.Artists)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sunny, err := store.SongByOriginalID(ctx, "186016")
	require.NoError(t, err)
	assert.Equal(t, "https://music.163.com/song?id=186016", sunny.OriginalURL)
	assert.Len(t, sunny.Artists, 2)

	qilixiang, err := store.SongByOriginalID(ctx, "186001")
	require.NoError(t, err)
	require.Len(t, qilixiang.Artists, 1)
	assert.Equal(t, jay.ID, qilixiang.Artists[0].ID)
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	dir := fixture(t)
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	l := New(store, nil)

	_, err := l.Load(ctx, Options{SongDir: dir, ArtistDir: dir})
	require.NoError(t, err)
	report, err := l.Load(ctx, Options{SongDir: dir, ArtistDir: dir})
	require.NoError(t, err)
	assert.Zero(t, report.StubArtists)

	_, total, err := store.ListSongs(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestLoadClearAndRebuild(t *testing.T) {
	dir := fixture(t)
	store := catalog.NewMemoryStore()
	store.PutSong(&catalog.Song{ID: 50, Name: "旧歌", OriginalID: "old"})
	pub := &recordingPublisher{}

	report, err := New(store, pub).Load(context.Background(), Options{SongDir: dir, ArtistDir: dir, Clear: true, Rebuild: true})
	require.NoError(t, err)
	assert.True(t, report.RebuildQueued)

	_, err = store.SongByOriginalID(context.Background(), "old")
	assert.Error(t, err)

	require.Len(t, pub.events, 1)
	cmd, ok := pub.events[0].Value.(indexer.RebuildCommand)
	require.True(t, ok)
	assert.Equal(t, indexer.ScopeAll, cmd.Collection)
	assert.True(t, cmd.Clear)
}

func TestLoadRebuildErrors(t *testing.T) {
	dir := fixture(t)
	_, err := New(catalog.NewMemoryStore(), nil).Load(context.Background(), Options{SongDir: dir, Rebuild: true})
	assert.Error(t, err)

	pub := &recordingPublisher{err: errors.New("broker down")}
	report, err := New(catalog.NewMemoryStore(), pub).Load(context.Background(), Options{SongDir: dir, Rebuild: true})
	assert.ErrorContains(t, err, "broker down")
	assert.False(t, report.RebuildQueued)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, songIntroDir, "broken.json", `{"name":`)
	_, err := New(catalog.NewMemoryStore(), nil).Load(context.Background(), Options{SongDir: dir})
	assert.ErrorContains(t, err, "broken.json")
}

func TestLoadMissingDirectories(t *testing.T) {
	report, err := New(catalog.NewMemoryStore(), nil).Load(context.Background(), Options{SongDir: t.TempDir(), ArtistDir: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, report.Songs)
	assert.Zero(t, report.Artists)
}
