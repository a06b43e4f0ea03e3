package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "bare object",
			input: `{"is_same": true}`,
			want:  map[string]any{"is_same": true},
		},
		{
			name:  "prose around object",
			input: "Here is the result: {\"is_same\": true} — thanks",
			want:  map[string]any{"is_same": true},
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"suggestions\": []}\n```",
			want:  map[string]any{"suggestions": []any{}},
		},
		{
			name:  "nested objects kept whole",
			input: `result: {"a": {"b": {"c": 1}}, "d": 2} done`,
			want:  map[string]any{"a": map[string]any{"b": map[string]any{"c": json.Number("1")}}, "d": json.Number("2")},
		},
		{
			name:  "invalid candidate skipped",
			input: `first {not json} then {"ok": 1}`,
			want:  map[string]any{"ok": json.Number("1")},
		},
		{
			name:  "only first valid span used",
			input: `{"first": 1} and {"second": 2}`,
			want:  map[string]any{"first": json.Number("1")},
		},
		{
			name:  "stray closing brace ignored",
			input: `} oops {"x": "y"}`,
			want:  map[string]any{"x": "y"},
		},
		{
			name:  "empty object",
			input: `value: {}`,
			want:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.input)
			require.True(t, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_NoValidJSON(t *testing.T) {
	inputs := []string{
		"",
		"{",
		"no braces here",
		"}{",
		"{ unterminated {",
		"{not: json}",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got, ok := Extract(input)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestExtract_BraceInsideString(t *testing.T) {
	input := `answer: {"pattern": "}", "ok": true}`

	// Plain brace counting closes the span at the quoted brace and never recovers.
	_, ok := Extract(input)
	assert.False(t, ok)

	got, ok := Extract(input, StringAware())
	require.True(t, ok)
	assert.Equal(t, map[string]any{"pattern": "}", "ok": true}, got)
}

func TestExtract_StringAwareEscapes(t *testing.T) {
	input := `x {"quote": "she said \"{hi}\"", "n": 1} y`

	got, ok := Extract(input, StringAware())
	require.True(t, ok)
	assert.Equal(t, `she said "{hi}"`, got["quote"])
}

func TestExtract_StringAwareIgnoresProseQuotes(t *testing.T) {
	got, ok := Extract(`He said "here you go": {"a": 1}`, StringAware())
	require.True(t, ok)
	assert.Equal(t, json.Number("1"), got["a"])
}

func TestInto(t *testing.T) {
	var verdict struct {
		IsSame bool `json:"is_same"`
	}
	require.NoError(t, Into("sure: {\"is_same\": true}", &verdict))
	assert.True(t, verdict.IsSame)

	assert.Error(t, Into("nothing", &verdict))
	assert.Error(t, Into(`{"is_same": "yes"}`, &verdict))
}

func TestExtractAndSave(t *testing.T) {
	sink := NewMemorySink()

	msg, ok := ExtractAndSave("Here is the result: {\"is_same\": true} — thanks", "result.json", sink)
	assert.True(t, ok)
	assert.Equal(t, "Extracted JSON saved to result.json", msg)

	saved, found := sink.Get("result.json")
	require.True(t, found)
	assert.Equal(t, map[string]any{"is_same": true}, saved)
}

func TestExtractAndSave_NoJSON(t *testing.T) {
	sink := NewMemorySink()

	msg, ok := ExtractAndSave("no braces here", "result.json", sink)
	assert.False(t, ok)
	assert.Equal(t, "No valid JSON found in the input.", msg)
	assert.Equal(t, 0, sink.Len())
}

func TestExtractAndSave_SinkFailure(t *testing.T) {
	msg, ok := ExtractAndSave(`{"a": 1}`, "", NewMemorySink())
	assert.False(t, ok)
	assert.Contains(t, msg, "Failed to save")
}

func TestFileSink_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewFileSink(dir)

	msg, ok := ExtractAndSave(`text {"suggestions": [{"level": "1"}]} text`, "suggested_structure.json", sink)
	require.True(t, ok, msg)

	data, err := os.ReadFile(sink.Path("suggested_structure.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": [{"level": "1"}]}`, string(data))
	assert.Contains(t, string(data), "\n  \"suggestions\"")
}

func TestExtractAndSave_LargeNumbersExact(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	msg, ok := ExtractAndSave(`result: {"id": 12345678901234567891, "n": 9007199254740993, "f": 0.1} done`, "out.json", sink)
	require.True(t, ok, msg)

	data, err := os.ReadFile(sink.Path("out.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": 12345678901234567891`)
	assert.Contains(t, string(data), `"n": 9007199254740993`)
	assert.Contains(t, string(data), `"f": 0.1`)
}

func TestFileSink_EmptyName(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	assert.Error(t, sink.Save("", map[string]any{}))
}

func jsonValue(depth int) *rapid.Generator[any] {
	return rapid.Custom(func(t *rapid.T) any {
		kind := rapid.IntRange(0, 3).Draw(t, "kind")
		if depth == 0 && kind == 3 {
			kind = 0
		}
		switch kind {
		case 0:
			return rapid.StringMatching(`[a-zA-Z0-9 .,:-]{0,12}`).Draw(t, "string")
		case 1:
			return jsonNumber().Draw(t, "number")
		case 2:
			return rapid.Bool().Draw(t, "bool")
		default:
			return jsonObject(depth - 1).Draw(t, "object")
		}
	})
}

// jsonNumber draws integers across the whole int64 range, integers too wide
// for any machine type, and decimals
func jsonNumber() *rapid.Generator[json.Number] {
	return rapid.Custom(func(t *rapid.T) json.Number {
		switch rapid.IntRange(0, 2).Draw(t, "numberKind") {
		case 0:
			return json.Number(strconv.FormatInt(rapid.Int64().Draw(t, "int"), 10))
		case 1:
			return json.Number(rapid.StringMatching(`-?[1-9][0-9]{19,30}`).Draw(t, "bigint"))
		default:
			return json.Number(rapid.StringMatching(`-?(0|[1-9][0-9]{0,8})\.[0-9]{1,12}`).Draw(t, "decimal"))
		}
	})
}

func jsonObject(depth int) *rapid.Generator[map[string]any] {
	return rapid.MapOfN(rapid.StringMatching(`[a-z]{1,6}`), jsonValue(depth), 0, 4)
}

func TestExtract_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		obj := jsonObject(2).Draw(t, "obj")
		prefix := rapid.StringMatching(`[a-zA-Z .,!:\n]{0,20}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-zA-Z .,!:\n]{0,20}`).Draw(t, "suffix")

		data, err := json.Marshal(obj)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		got, ok := Extract(prefix + string(data) + suffix)
		if !ok {
			t.Fatalf("no JSON extracted from %q", prefix+string(data)+suffix)
		}
		if diff := cmp.Diff(obj, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExtract_NeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.StringMatching(`[{}" a:1,\\]{0,40}`).Draw(t, "input")
		Extract(input)
		Extract(input, StringAware())
	})
}
