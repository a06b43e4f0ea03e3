package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/pkg/model"
)

// Session is a stored scenario generation session. ModelOutput holds the
// generator's JSON, with test cases under TestCases[].test_case.TestCases.
type Session struct {
	ID           uuid.UUID       `json:"id"`
	ProcessTitle string          `json:"process_title"`
	Category     string          `json:"selected_category"`
	TestType     string          `json:"selected_test_type"`
	ModelOutput  json.RawMessage `json:"model_output"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Combination identifies the sessions of one process, category and test type
type Combination struct {
	ProcessTitle string `json:"process_title"`
	Category     string `json:"selected_category"`
	TestType     string `json:"selected_test_type"`
}

// Label renders the combination the way it is listed to users
func (c Combination) Label() string {
	return fmt.Sprintf("%s - %s - %s", c.ProcessTitle, c.TestType, c.Category)
}

// Valid reports whether every part of the combination is set
func (c Combination) Valid() bool {
	return c.ProcessTitle != "" && c.Category != "" && c.TestType != ""
}

// SaveSession stores a session, assigning its ID
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	if len(session.ModelOutput) == 0 {
		session.ModelOutput = json.RawMessage(`{}`)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, process_title, selected_category, selected_test_type, model_output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.ProcessTitle, session.Category, session.TestType, session.ModelOutput, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ListCombinations returns the distinct combinations with every part set
func (s *Store) ListCombinations(ctx context.Context) ([]Combination, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT process_title, selected_category, selected_test_type
		FROM sessions
		WHERE process_title <> '' AND selected_category <> '' AND selected_test_type <> ''
		ORDER BY process_title, selected_category, selected_test_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list combinations: %w", err)
	}
	defer rows.Close()

	var combos []Combination
	for rows.Next() {
		var c Combination
		if err := rows.Scan(&c.ProcessTitle, &c.Category, &c.TestType); err != nil {
			return nil, fmt.Errorf("failed to scan combination: %w", err)
		}
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// GetSessionByCombination returns the latest session of a combination, or
// nil when there is none
func (s *Store) GetSessionByCombination(ctx context.Context, c Combination) (*Session, error) {
	session := &Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, process_title, selected_category, selected_test_type, model_output, created_at
		FROM sessions
		WHERE process_title = $1 AND selected_category = $2 AND selected_test_type = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, c.ProcessTitle, c.Category, c.TestType).Scan(&session.ID, &session.ProcessTitle, &session.Category,
		&session.TestType, &session.ModelOutput, &session.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetSessionTestCases returns the test cases of the latest session of a
// combination, flattened across scenarios. It returns nil only when the
// combination has no session.
func (s *Store) GetSessionTestCases(ctx context.Context, c Combination) ([]model.TestCase, error) {
	session, err := s.GetSessionByCombination(ctx, c)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	cases, skipped, err := FlattenTestCases(session.ModelOutput)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn().
			Str("session", session.ID.String()).
			Int("skipped", skipped).
			Msg("skipped incomplete test cases in session")
	}
	if cases == nil {
		cases = []model.TestCase{}
	}
	return cases, nil
}

type modelOutput struct {
	TestCases []struct {
		ScenarioID string `json:"scenario_id"`
		TestCase   struct {
			TestCases []json.RawMessage `json:"TestCases"`
		} `json:"test_case"`
	} `json:"TestCases"`
}

// FlattenTestCases reads the nested generator output into a flat list.
// A case without its own ScenarioID takes its group's scenario_id; cases
// still missing a required field are skipped and counted.
func FlattenTestCases(raw json.RawMessage) ([]model.TestCase, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}

	var out modelOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode model output: %w", err)
	}

	var cases []model.TestCase
	skipped := 0
	for _, group := range out.TestCases {
		for _, item := range group.TestCase.TestCases {
			var tc model.TestCase
			if err := json.Unmarshal(item, &tc); err != nil {
				skipped++
				continue
			}
			if tc.ScenarioID == "" {
				tc.ScenarioID = group.ScenarioID
			}
			if err := tc.Validate(); err != nil {
				skipped++
				continue
			}
			cases = append(cases, tc)
		}
	}
	return cases, skipped, nil
}
