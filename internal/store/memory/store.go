// Package memory provides the in-memory persistence implementation used in
// development and tests. It mirrors the Postgres store's semantics, including
// the fingerprint and source-URL uniqueness constraints and the job state
// machine enforcement.
package memory

import (
	"sync"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Store implements every scrape store interface over process memory.
type Store struct {
	mu sync.RWMutex

	sources   map[string]scrape.Source
	schedules map[string]scrape.Schedule
	jobs      map[string]scrape.Job
	runs      []scrape.Run

	raw           map[string]scrape.RawRecord
	byFingerprint map[string]string
	bySourceURL   map[string]string
	normalized    map[string]scrape.NormalizedJob

	state     scrape.EngineSnapshot
	stateInit bool

	clock scrape.Clock
}

// New constructs an empty Store.
func New(clock scrape.Clock) *Store {
	return &Store{
		sources:       make(map[string]scrape.Source),
		schedules:     make(map[string]scrape.Schedule),
		jobs:          make(map[string]scrape.Job),
		raw:           make(map[string]scrape.RawRecord),
		byFingerprint: make(map[string]string),
		bySourceURL:   make(map[string]string),
		normalized:    make(map[string]scrape.NormalizedJob),
		clock:         clock,
	}
}
