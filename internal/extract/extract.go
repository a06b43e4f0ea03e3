// Package extract pulls the first JSON object out of free-form LLM output.
//
// Models asked for JSON frequently wrap it in prose or markdown. The scanner
// walks the text once, tracking brace depth, and tries every balanced {...}
// span in order until one parses.
//
// By default the scanner only counts braces: a '{' or '}' inside a quoted
// string of the candidate shifts the depth and can split or merge spans.
// StringAware switches to a scanner that skips braces inside string literals.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	noJSONMessage = "No valid JSON found in the input."
)

// Option configures a scan
type Option func(*scanner)

// StringAware ignores braces that appear inside JSON string literals of a
// candidate span. Text outside a candidate is never treated as a string.
func StringAware() Option {
	return func(s *scanner) {
		s.stringAware = true
	}
}

type scanner struct {
	stringAware bool
}

// Extract returns the first balanced {...} span of input that parses as a
// JSON object. The second result is false when no span parses.
// Numbers are json.Number, so integers beyond float64 precision survive
// a save unchanged.
func Extract(input string, opts ...Option) (map[string]any, bool) {
	raw, ok := ExtractRaw(input, opts...)
	if !ok {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

// ExtractRaw is Extract without decoding: it returns the bytes of the first
// span that is valid JSON.
func ExtractRaw(input string, opts ...Option) (json.RawMessage, bool) {
	s := &scanner{}
	for _, opt := range opts {
		opt(s)
	}
	return s.scan(input)
}

// Into decodes the first parsable span into v
func Into(input string, v any, opts ...Option) error {
	raw, ok := ExtractRaw(input, opts...)
	if !ok {
		return fmt.Errorf("no valid JSON found in input")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode extracted JSON: %w", err)
	}
	return nil
}

func (s *scanner) scan(input string) (json.RawMessage, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if s.stringAware && depth > 0 {
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			if c == '"' {
				inString = true
				continue
			}
		}

		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth != 0 {
				continue
			}

			candidate := input[start : i+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), true
			}
			log.Debug().
				Int("start", start).
				Int("end", i+1).
				Msg("discarding unparsable JSON candidate")
		}
	}

	return nil, false
}

// ExtractAndSave extracts the first JSON object from input and stores it in
// sink under name. It never fails loudly: the returned message describes the
// outcome and ok reports whether an object was saved.
func ExtractAndSave(input, name string, sink Sink, opts ...Option) (string, bool) {
	obj, found := Extract(input, opts...)
	if !found {
		return noJSONMessage, false
	}

	if err := sink.Save(name, obj); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("failed to save extracted JSON")
		return fmt.Sprintf("Failed to save extracted JSON to %s: %v", name, err), false
	}

	return fmt.Sprintf("Extracted JSON saved to %s", name), true
}
