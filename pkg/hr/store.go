// Package hr provides the days-off lookup service: a Store abstraction over
// the person -> days table and the HTTP handlers exposing it.
package hr

import (
	"context"
	"errors"
)

// ErrNotFound indicates the person is not in the days-off table.
var ErrNotFound = errors.New("person not found")

// Store looks up available days off for a person.
type Store interface {
	// DaysOff returns the days-off balance for the named person, or
	// ErrNotFound if the person is unknown.
	DaysOff(ctx context.Context, person string) (int, error)
}

// StaticStore serves days-off balances from a fixed in-memory table.
type StaticStore struct {
	daysOff map[string]int
}

// NewStaticStore creates a store over the given person -> days table.
// The map is copied; later mutation of the argument has no effect.
func NewStaticStore(daysOff map[string]int) *StaticStore {
	table := make(map[string]int, len(daysOff))
	for person, days := range daysOff {
		table[person] = days
	}
	return &StaticStore{daysOff: table}
}

// DaysOff implements Store.
func (s *StaticStore) DaysOff(_ context.Context, person string) (int, error) {
	days, ok := s.daysOff[person]
	if !ok {
		return 0, ErrNotFound
	}
	return days, nil
}

// Verify interface compliance.
var _ Store = (*StaticStore)(nil)
