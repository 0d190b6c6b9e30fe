package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Shape selects the expected top-level JSON container in a model reply.
type Shape int

const (
	ShapeArray Shape = iota
	ShapeObject
)

// ExtractionError reports that no parseable structure was recovered from a
// model reply. Fatal for the batch that produced it.
type ExtractionError struct {
	Msg     string
	Snippet string
	Offset  int64
}

func (e *ExtractionError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("extract json: %s", e.Msg)
	}
	return fmt.Sprintf("extract json: %s at offset %d: %q", e.Msg, e.Offset, e.Snippet)
}

var (
	fencedArray  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*\\])\\s*```")
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
)

// ExtractArray recovers a JSON array embedded in free-form model output.
func ExtractArray(text string) (json.RawMessage, error) {
	return Extract(text, ShapeArray)
}

// ExtractObject recovers a JSON object embedded in free-form model output.
func ExtractObject(text string) (json.RawMessage, error) {
	return Extract(text, ShapeObject)
}

// Extract recovers a JSON container of the expected shape from raw reply
// text. Model replies are not guaranteed to be bare JSON: they routinely
// wrap it in prose or markdown fences, and first/last-bracket slicing breaks
// on nested containers or brackets inside string values. The recovery is
// therefore two-stage: a greedy fenced-block capture, then a string-aware
// bracket-matching scan over the raw text.
func Extract(text string, shape Shape) (json.RawMessage, error) {
	open, closeCh := byte('['), byte(']')
	fence := fencedArray
	if shape == ShapeObject {
		open, closeCh = '{', '}'
		fence = fencedObject
	}

	if m := fence.FindStringSubmatch(text); m != nil {
		if raw, err := validate(m[1]); err == nil {
			return raw, nil
		}
		// Fenced content failed to parse; fall through to the raw scan,
		// which may locate a cleaner container elsewhere in the reply.
	}

	captured, ok := scanBalanced(text, open, closeCh)
	if !ok {
		return nil, &ExtractionError{Msg: fmt.Sprintf("no %c...%c container found in response", open, closeCh)}
	}

	raw, err := validate(captured)
	if err != nil {
		extErr := &ExtractionError{Msg: err.Error(), Snippet: snippetAround(captured, offsetOf(err))}
		extErr.Offset = offsetOf(err)
		return nil, extErr
	}
	return raw, nil
}

// scanBalanced finds the first opening bracket of the expected kind and
// returns the substring up to its matching close. The cursor tracks whether
// it is inside a quoted string, toggling on unescaped '"' and skipping one
// character after '\'; depth only changes outside strings.
func scanBalanced(text string, open, closeCh byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if inString && ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' && start >= 0 {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case open:
			if start < 0 {
				start = i
			}
			depth++
		case closeCh:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func validate(candidate string) (json.RawMessage, error) {
	var decoded any
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		return nil, err
	}
	return json.RawMessage(candidate), nil
}

func offsetOf(err error) int64 {
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return syntax.Offset
	}
	var unmarshal *json.UnmarshalTypeError
	if errors.As(err, &unmarshal) {
		return unmarshal.Offset
	}
	return 0
}

func snippetAround(s string, offset int64) string {
	const window = 30
	lo := int(offset) - window
	if lo < 0 {
		lo = 0
	}
	hi := int(offset) + window
	if hi > len(s) {
		hi = len(s)
	}
	return s[lo:hi]
}
