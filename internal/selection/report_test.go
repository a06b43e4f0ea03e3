package selection

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/stlc/pkg/model"
)

func TestResult_Summary(t *testing.T) {
	oracle := NewTableOracle().Same(caseA, caseB)
	result, err := NewSelector(oracle).Select(context.Background(), []model.TestCase{caseA, caseB, caseC})
	require.NoError(t, err)

	assert.Equal(t, Summary{Input: 3, Unique: 2, Duplicates: 1, Comparisons: 2}, result.Summary())
}

func TestResult_EncodeKeys(t *testing.T) {
	result, err := NewSelector(NewTableOracle()).Select(context.Background(), []model.TestCase{caseA})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Encode(&buf))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Contains(t, raw, "unique_test_cases")
	assert.Contains(t, raw, "similar_test_cases")
	assert.Contains(t, raw, "comparison_logs")
	assert.NotContains(t, raw, "warnings", "warnings are omitted when empty")

	// Empty lists encode as [] rather than null.
	assert.JSONEq(t, `[]`, string(raw["similar_test_cases"]))
	assert.JSONEq(t, `[]`, string(raw["comparison_logs"]))
}

func TestResult_EncodeLogSnapshotsKeepNullFields(t *testing.T) {
	bare := model.NewTestCase("S1", "T1", "Login", "", "")
	other := model.NewTestCase("S1", "T2", "Logout", "", "")
	result, err := NewSelector(NewTableOracle()).Select(context.Background(), []model.TestCase{bare, other})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Encode(&buf))

	var report struct {
		Logs []map[string]json.RawMessage `json:"comparison_logs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	require.Len(t, report.Logs, 1)

	for _, side := range []string{"Case1", "Case2"} {
		var snap map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(report.Logs[0][side], &snap), side)
		require.Contains(t, snap, "Description", side)
		require.Contains(t, snap, "Objective", side)
		assert.Equal(t, "null", string(snap["Description"]))
	}
}

func TestResult_EncodeNoHTMLEscape(t *testing.T) {
	tc := model.NewTestCase("S1", "T1", "a < b && c > d", "", "")
	result, err := NewSelector(NewTableOracle()).Select(context.Background(), []model.TestCase{tc})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, result.Encode(&buf))
	assert.Contains(t, buf.String(), "a < b && c > d")
}

func TestWriteReadReport(t *testing.T) {
	oracle := NewTableOracle().Same(caseC, caseA)
	result, err := fixedSelector(oracle).Select(context.Background(), []model.TestCase{caseA, caseB, caseC})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "smart_selection_results.json")
	require.NoError(t, WriteReport(path, result))

	loaded, err := ReadReport(path)
	require.NoError(t, err)

	if diff := cmp.Diff(result, loaded); diff != "" {
		t.Errorf("report round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadReport_Missing(t *testing.T) {
	_, err := ReadReport(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
