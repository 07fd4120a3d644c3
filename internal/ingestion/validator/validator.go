// Package validator checks loader records before they reach the catalog
// and reports every failing field at once.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion"
)

const (
	maxNameLength   = 200
	maxLyricsLength = 1 << 20
	maxIDLength     = 64
	maxURLLength    = 500
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f, e.Fields[f])
	}
	return strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) name(field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		f[field] = "is required"
	case utf8.RuneCountInString(value) > maxNameLength:
		f[field] = fmt.Sprintf("must be at most %d characters", maxNameLength)
	}
}

func (f fieldErrors) id(field, value string, required bool) {
	switch {
	case value == "" && required:
		f[field] = "is required"
	case len(value) > maxIDLength:
		f[field] = fmt.Sprintf("must be at most %d characters", maxIDLength)
	case strings.ContainsAny(value, " \t\n/"):
		f[field] = "must not contain whitespace or slashes"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

func ValidateSong(s *ingestion.SongRecord) error {
	errs := fieldErrors{}
	errs.name("name", s.Name)
	errs.id("original_id", s.OriginalID, true)
	if len(s.Lyrics) > maxLyricsLength {
		errs["lyrics"] = fmt.Sprintf("must be at most %d bytes", maxLyricsLength)
	}
	if len(s.OriginalURL) > maxURLLength {
		errs["original_url"] = fmt.Sprintf("must be at most %d characters", maxURLLength)
	}
	for i, a := range s.Artists {
		errs.name(fmt.Sprintf("artists[%d].name", i), a.Name)
		errs.id(fmt.Sprintf("artists[%d].original_id", i), a.OriginalID, false)
	}
	return errs.err()
}

func ValidateArtist(a *ingestion.ArtistRecord) error {
	errs := fieldErrors{}
	errs.name("name", a.Name)
	errs.id("original_id", a.OriginalID, false)
	if len(a.OriginalURL) > maxURLLength {
		errs["original_url"] = fmt.Sprintf("must be at most %d characters", maxURLLength)
	}
	for i, alias := range a.Alias {
		if utf8.RuneCountInString(alias) > maxNameLength {
			errs[fmt.Sprintf("alias[%d]", i)] = fmt.Sprintf("must be at most %d characters", maxNameLength)
		}
	}
	return errs.err()
}
