package indexer

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
)

// ScopeAll selects every collection in a RebuildCommand.
const ScopeAll = "all"

// RebuildCommand asks the indexer service to rebuild one collection or all
// of them. It is published on the index-rebuild topic.
type RebuildCommand struct {
	Collection  string    `json:"collection"`
	Clear       bool      `json:"clear"`
	Append      bool      `json:"append"`
	RequestedAt time.Time `json:"requested_at"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Collections resolves the command scope.
func (c RebuildCommand) Collections() ([]catalog.Collection, error) {
	if c.Collection == ScopeAll {
		return catalog.All, nil
	}
	col, err := catalog.ParseCollection(c.Collection)
	if err != nil {
		return nil, err
	}
	return []catalog.Collection{col}, nil
}

func (c RebuildCommand) Options() BuildOptions {
	return BuildOptions{Clear: c.Clear, Append: c.Append}
}

func (c RebuildCommand) Validate() error {
	if c.Clear && c.Append {
		return fmt.Errorf("%w: clear and append are mutually exclusive", apperrors.ErrInvalidInput)
	}
	_, err := c.Collections()
	return err
}

// IndexCompleteEvent is published after a successful build so searchers can
// drop cached rankings for the collection.
type IndexCompleteEvent struct {
	RunID       string             `json:"run_id"`
	Collection  catalog.Collection `json:"collection"`
	Documents   int                `json:"documents"`
	Segments    int64              `json:"segments"`
	CompletedAt time.Time          `json:"completed_at"`
}

func CompleteEvent(r *BuildReport) IndexCompleteEvent {
	return IndexCompleteEvent{
		RunID:       r.RunID,
		Collection:  r.Collection,
		Documents:   r.Documents,
		Segments:    r.Segments,
		CompletedAt: time.Now().UTC(),
	}
}
