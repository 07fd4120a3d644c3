package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		query      *string
		collection *string
		want       State
		wantErr    error
		wantColl   catalog.Collection
	}{
		{"nothing sent", nil, nil, StateEmptyForm, nil, ""},
		{"collection only", nil, ptr("song"), StateMissingQuery, apperrors.ErrMissingQuery, ""},
		{"empty query", ptr(""), ptr("song"), StateMissingQuery, apperrors.ErrMissingQuery, ""},
		{"blank query", ptr("  \t"), ptr("artist"), StateMissingQuery, apperrors.ErrMissingQuery, ""},
		{"blank query no collection", ptr(" "), nil, StateMissingQuery, apperrors.ErrMissingQuery, ""},
		{"query only", ptr("晴天"), nil, StateMissingCollection, apperrors.ErrMissingCollection, ""},
		{"unknown collection", ptr("晴天"), ptr("album"), StateInvalidCollection, apperrors.ErrInvalidCollection, ""},
		{"empty collection", ptr("晴天"), ptr(""), StateInvalidCollection, apperrors.ErrInvalidCollection, ""},
		{"song", ptr("晴天"), ptr("song"), StateReady, nil, catalog.Songs},
		{"artist", ptr("周杰伦"), ptr(" artist "), StateReady, nil, catalog.Artists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Parse(tt.query, tt.collection)
			assert.Equal(t, tt.want, req.State)
			assert.Equal(t, tt.wantColl, req.Collection)
			if tt.wantErr == nil {
				assert.NoError(t, req.Err())
			} else {
				assert.ErrorIs(t, req.Err(), tt.wantErr)
			}
		})
	}
}

func TestParseKeepsRawQuery(t *testing.T) {
	req := Parse(ptr(" moon moon "), ptr("song"))
	assert.Equal(t, " moon moon ", req.Query)
	assert.Equal(t, "song", req.RawCollection)
}
