// Package services provides business logic and orchestration on top of the
// store: split-aware ledger writes, the bill payment state machine, goal
// progress with badges, and bank link lifecycle.
package services

import (
	"fmt"
	"time"

	"divvy/internal/core"
)

// OccurrenceScheduler is the strategy interface for projecting the next due
// date of a recurring bill. Each frequency has its own implementation.
type OccurrenceScheduler interface {
	Next(from time.Time) time.Time
}

// WeeklyScheduler advances by exactly seven days.
type WeeklyScheduler struct{}

func (WeeklyScheduler) Next(from time.Time) time.Time {
	return from.AddDate(0, 0, 7)
}

// MonthlyScheduler advances by one calendar month, clamping to the last day
// of the target month. AddDate alone would roll Jan 31 into Mar 3.
type MonthlyScheduler struct{}

func (MonthlyScheduler) Next(from time.Time) time.Time {
	return clampedAdd(from, 0, 1)
}

// YearlyScheduler advances by one year, clamping Feb 29 to Feb 28 on
// non-leap years.
type YearlyScheduler struct{}

func (YearlyScheduler) Next(from time.Time) time.Time {
	return clampedAdd(from, 1, 0)
}

func clampedAdd(from time.Time, years, months int) time.Time {
	first := time.Date(from.Year()+years, from.Month()+time.Month(months), 1, 0, 0, 0, 0, from.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	day := from.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, from.Location())
}

var schedulers = map[core.RecurrenceFrequency]OccurrenceScheduler{
	core.Weekly:  WeeklyScheduler{},
	core.Monthly: MonthlyScheduler{},
	core.Yearly:  YearlyScheduler{},
}

// GetScheduler returns the scheduler for a frequency.
func GetScheduler(frequency core.RecurrenceFrequency) (OccurrenceScheduler, error) {
	s, ok := schedulers[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence frequency: %s", frequency)
	}
	return s, nil
}

// RegisterScheduler registers a custom scheduler for a new frequency type.
func RegisterScheduler(frequency core.RecurrenceFrequency, s OccurrenceScheduler) {
	schedulers[frequency] = s
}

// NextOccurrence projects the due date that follows from for the given
// frequency.
func NextOccurrence(frequency core.RecurrenceFrequency, from time.Time) (time.Time, error) {
	s, err := GetScheduler(frequency)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}
