package selection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/QTest-hq/stlc/pkg/model"
)

// caseID identifies a case by its scenario and test case IDs kept apart,
// so ("A_B", "C") and ("A", "B_C") never collide
type caseID [2]string

func idOf(tc model.TestCase) caseID {
	return caseID{tc.ScenarioID, tc.TestCaseID}
}

type pairKey [2]caseID

// TableOracle answers from a fixed table of verdicts keyed by case IDs.
// Pairs are looked up in both orders; unknown pairs are "not the same".
// It is used for dry runs and as a deterministic stand-in for the LLM oracle.
type TableOracle struct {
	mu       sync.Mutex
	verdicts map[pairKey]bool
	failures map[pairKey]error
	calls    int
}

// NewTableOracle creates an empty table
func NewTableOracle() *TableOracle {
	return &TableOracle{
		verdicts: make(map[pairKey]bool),
		failures: make(map[pairKey]error),
	}
}

// Same marks the pair as the same test case
func (o *TableOracle) Same(a, b model.TestCase) *TableOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts[pairKey{idOf(a), idOf(b)}] = true
	return o
}

// Fail makes comparisons of the pair return err
func (o *TableOracle) Fail(a, b model.TestCase, err error) *TableOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[pairKey{idOf(a), idOf(b)}] = err
	return o
}

// IsSame implements Oracle
func (o *TableOracle) IsSame(ctx context.Context, candidate, kept model.TestCase) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++

	if err := ctx.Err(); err != nil {
		return false, err
	}

	forward := pairKey{idOf(candidate), idOf(kept)}
	backward := pairKey{idOf(kept), idOf(candidate)}

	if err, ok := o.failures[forward]; ok {
		return false, err
	}
	if err, ok := o.failures[backward]; ok {
		return false, err
	}
	return o.verdicts[forward] || o.verdicts[backward], nil
}

// Calls returns how many times IsSame was invoked
func (o *TableOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// TitleOracle treats cases with case-insensitively equal titles as the same.
// It is the offline fallback used when no LLM is reachable.
func TitleOracle() Oracle {
	return OracleFunc(func(ctx context.Context, candidate, kept model.TestCase) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("comparison cancelled: %w", err)
		}
		return strings.EqualFold(strings.TrimSpace(candidate.Title), strings.TrimSpace(kept.Title)), nil
	})
}
