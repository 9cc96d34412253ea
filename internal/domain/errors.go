package domain

import "errors"

var (
	// ErrRunInProgress is returned when a start request arrives while a run
	// already holds the coordinator lock. Callers map it to 409.
	ErrRunInProgress = errors.New("a scrape run is already in progress")

	// ErrBlocked marks a fetch that the target site actively refused
	// (403/429 or a challenge page). Never retried.
	ErrBlocked = errors.New("site blocked the request")

	// ErrInvalidWeights marks a scoring weight set that does not sum to 100.
	ErrInvalidWeights = errors.New("scoring weights must sum to 100")

	// ErrNotFound is the generic missing-row error surfaced by storage.
	ErrNotFound = errors.New("not found")

	// ErrUnknownSite is returned when no extractor is registered for a name.
	ErrUnknownSite = errors.New("unknown site")
)
