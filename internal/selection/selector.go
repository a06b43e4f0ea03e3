// Package selection removes semantically duplicated test cases.
//
// The pass is greedy and order preserving: each candidate is compared against
// the already accepted cases in the order they were accepted, and is dropped
// as soon as the oracle reports a match. Every oracle call is logged.
package selection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/pkg/model"
)

// Oracle judges whether two test cases are the same.
// An error means no verdict could be produced.
type Oracle interface {
	IsSame(ctx context.Context, candidate, kept model.TestCase) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, candidate, kept model.TestCase) (bool, error)

func (f OracleFunc) IsSame(ctx context.Context, candidate, kept model.TestCase) (bool, error) {
	return f(ctx, candidate, kept)
}

// LogEntry records one oracle invocation
type LogEntry struct {
	Step        int            `json:"Step"`
	ProcessName string         `json:"ProcessName"`
	Timestamp   time.Time      `json:"Timestamp"`
	Case1       model.TestCase `json:"Case1"`
	Case2       model.TestCase `json:"Case2"`
	IsSame      bool           `json:"is_same"`
}

// Duplicate pairs a dropped case with the accepted case it matched
type Duplicate struct {
	DuplicateCase model.TestCase `json:"DuplicateCase"`
	MatchedWith   model.TestCase `json:"MatchedWith"`
}

// Warning reports a comparison whose verdict could not be obtained.
// The comparison was treated as "not the same".
type Warning struct {
	Step    int            `json:"step"`
	Case1   model.TestCase `json:"case1"`
	Case2   model.TestCase `json:"case2"`
	Message string         `json:"message"`
}

// Result is the outcome of a selection pass
type Result struct {
	Unique     []model.TestCase `json:"unique_test_cases"`
	Duplicates []Duplicate      `json:"similar_test_cases"`
	Log        []LogEntry       `json:"comparison_logs"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// Comparisons returns the number of oracle calls made
func (r *Result) Comparisons() int {
	return len(r.Log)
}

// Selector runs selection passes against an oracle
type Selector struct {
	oracle Oracle
	now    func() time.Time
	newID  func() string
}

// SelectorOption configures a Selector
type SelectorOption func(*Selector)

// WithClock overrides the timestamp source of log entries
func WithClock(now func() time.Time) SelectorOption {
	return func(s *Selector) {
		s.now = now
	}
}

// WithIDGenerator overrides the process name generator of log entries
func WithIDGenerator(newID func() string) SelectorOption {
	return func(s *Selector) {
		s.newID = newID
	}
}

// NewSelector creates a selector backed by oracle
func NewSelector(oracle Oracle, opts ...SelectorOption) *Selector {
	s := &Selector{
		oracle: oracle,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select partitions cases into unique cases and duplicates.
//
// Oracle errors never abort the pass: the verdict falls back to false, the
// comparison is still logged and a warning is recorded. Cancelling ctx stops
// the pass; the partial result is returned together with ctx.Err().
func (s *Selector) Select(ctx context.Context, cases []model.TestCase) (*Result, error) {
	result := &Result{
		Unique:     make([]model.TestCase, 0, len(cases)),
		Duplicates: []Duplicate{},
		Log:        []LogEntry{},
	}
	step := 1

	for _, candidate := range cases {
		matched := false

		for _, kept := range result.Unique {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			same, err := s.oracle.IsSame(ctx, candidate, kept)
			if err != nil {
				log.Warn().
					Err(err).
					Int("step", step).
					Str("candidate", candidate.Key()).
					Str("kept", kept.Key()).
					Msg("similarity comparison failed, treating as different")
				result.Warnings = append(result.Warnings, Warning{
					Step:    step,
					Case1:   candidate,
					Case2:   kept,
					Message: err.Error(),
				})
				same = false
			}

			result.Log = append(result.Log, LogEntry{
				Step:        step,
				ProcessName: s.newID(),
				Timestamp:   s.now(),
				Case1:       candidate,
				Case2:       kept,
				IsSame:      same,
			})
			step++

			if same {
				result.Duplicates = append(result.Duplicates, Duplicate{
					DuplicateCase: candidate,
					MatchedWith:   kept,
				})
				matched = true
				break
			}
		}

		if !matched {
			result.Unique = append(result.Unique, candidate)
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	log.Debug().
		Int("input", len(cases)).
		Int("unique", len(result.Unique)).
		Int("duplicates", len(result.Duplicates)).
		Int("comparisons", len(result.Log)).
		Int("warnings", len(result.Warnings)).
		Msg("selection complete")

	return result, nil
}
