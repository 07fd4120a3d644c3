// Package parser classifies an incoming search request before any scoring
// work is done.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
)

// State is the outcome of a search request. Parse produces the first five;
// the executor turns StateReady into StateNoResults or StateOK.
type State string

const (
	StateEmptyForm         State = "empty_form"
	StateMissingQuery      State = "missing_query"
	StateMissingCollection State = "missing_collection"
	StateInvalidCollection State = "invalid_collection"
	StateReady             State = "ready"
	StateNoResults         State = "no_results"
	StateOK                State = "ok"
)

type Request struct {
	Query         string
	RawCollection string
	Collection    catalog.Collection
	State         State
}

// Parse classifies a request. A nil pointer means the parameter was not
// sent at all, which differs from an empty value only for the empty form.
func Parse(query, collection *string) *Request {
	req := &Request{}
	if query != nil {
		req.Query = *query
	}
	if collection != nil {
		req.RawCollection = *collection
	}

	switch {
	case query == nil && collection == nil:
		req.State = StateEmptyForm
	case query == nil || strings.TrimSpace(*query) == "":
		req.State = StateMissingQuery
	case collection == nil:
		req.State = StateMissingCollection
	default:
		c, err := catalog.ParseCollection(strings.TrimSpace(*collection))
		if err != nil {
			req.State = StateInvalidCollection
			return req
		}
		req.Collection = c
		req.State = StateReady
	}
	return req
}

// Err returns the user input error for the error states and nil otherwise.
func (r *Request) Err() error {
	switch r.State {
	case StateMissingQuery:
		return apperrors.ErrMissingQuery
	case StateMissingCollection:
		return apperrors.ErrMissingCollection
	case StateInvalidCollection:
		return apperrors.ErrInvalidCollection
	}
	return nil
}
