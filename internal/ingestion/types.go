// Package ingestion defines the on-disk JSON records the catalog loader
// reads. Files are produced by the site scraper:
//
//	<songs>/song_intro/*.json             one SongRecord per file
//	<artists>/artist_intro/*.json         one ArtistRecord per file
//	<artists>/artist_song_ids/*.json      artist<ID>songs.json, a list of song ids
package ingestion

import "fmt"

type ArtistRef struct {
	Name       string `json:"name"`
	OriginalID string `json:"original_id,omitempty"`
}

type SongRecord struct {
	Name        string      `json:"name"`
	Alias       string      `json:"alias,omitempty"`
	OriginalID  string      `json:"original_id"`
	OriginalURL string      `json:"original_url,omitempty"`
	Lyrics      string      `json:"lyrics"`
	Artists     []ArtistRef `json:"artists"`
}

// URL returns the song's source page, deriving it from the id when the
// record carries none.
func (s *SongRecord) URL() string {
	if s.OriginalURL != "" {
		return s.OriginalURL
	}
	return fmt.Sprintf("https://music.163.com/song?id=%s", s.OriginalID)
}

type ArtistIntro struct {
	Intro       string   `json:"intro,omitempty"`
	History     string   `json:"history,omitempty"`
	MasterWorks []string `json:"master work,omitempty"`
	Milestones  []string `json:"milestones,omitempty"`
}

type ArtistRecord struct {
	Name        string      `json:"name"`
	Alias       []string    `json:"alias,omitempty"`
	OriginalID  string      `json:"original_id,omitempty"`
	OriginalURL string      `json:"original_url,omitempty"`
	Intro       ArtistIntro `json:"intro"`
}

// URL returns the artist's source page, or "" when the record has neither
// a url nor an id. Such artists are stored but never indexed.
func (a *ArtistRecord) URL() string {
	switch {
	case a.OriginalURL != "":
		return a.OriginalURL
	case a.OriginalID != "":
		return fmt.Sprintf("https://music.163.com/artist?id=%s", a.OriginalID)
	}
	return ""
}
