package refine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Parse errors for judge and answer replies.
var (
	ErrNoJSONObject  = errors.New("reply contains no JSON object")
	ErrNotANumber    = errors.New("reply is not a number")
	ErrMissingAnswer = errors.New("reply has neither process nor final answer")
)

// JSON field names in judge and answer replies.
const (
	fieldScore           = "score"
	fieldMissingEvidence = "missing_evidence"
	fieldProcess         = "process"
	fieldFinalAnswer     = "final answer"
)

// StrictVerdict is the parsed reply of the strict judge.
type StrictVerdict struct {
	Score           int    `json:"score"`
	MissingEvidence string `json:"missing_evidence"`
}

// Answer is the parsed reply of the final answer call.
type Answer struct {
	Process string `json:"process"`
	Final   string `json:"final_answer"`
}

// ParseStrict reads score and missing_evidence from a strict judge reply.
// Missing fields default to 0 and "". A score that is not an integer counts
// as 0 and leaves missing_evidence intact.
func ParseStrict(reply string) (StrictVerdict, error) {
	obj, err := decodeObject(reply)
	if err != nil {
		return StrictVerdict{}, err
	}

	var v StrictVerdict
	if raw, ok := obj[fieldScore]; ok {
		if score, err := intValue(raw); err == nil {
			v.Score = score
		}
	}
	if s, ok := obj[fieldMissingEvidence].(string); ok {
		v.MissingEvidence = s
	}
	return v, nil
}

// ParseLoose reads a loose judge reply as a bare number.
func ParseLoose(reply string) (float64, error) {
	s := strings.Trim(strings.TrimSpace(reply), "`\"'")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, truncate(reply, 80))
	}
	return f, nil
}

// ParseFinal reads the process and final answer fields of an answer reply.
// Either field may be absent and reads as "", but an object carrying neither
// is rejected.
func ParseFinal(reply string) (Answer, error) {
	obj, err := decodeObject(reply)
	if err != nil {
		return Answer{}, err
	}
	procRaw, hasProc := obj[fieldProcess]
	finalRaw, hasFinal := obj[fieldFinalAnswer]
	if !hasProc && !hasFinal {
		return Answer{}, ErrMissingAnswer
	}
	return Answer{Process: stringValue(procRaw), Final: stringValue(finalRaw)}, nil
}

// decodeObject parses reply as a JSON object, falling back to extraction from
// fenced or mixed text and then to light syntax repair.
func decodeObject(reply string) (map[string]any, error) {
	candidates := []string{reply}
	if extracted := extractJSON(reply); extracted != reply {
		candidates = append(candidates, extracted)
	}
	candidates = append(candidates, repairJSON(extractJSON(reply)))

	var lastErr error
	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err != nil {
			lastErr = err
			continue
		}
		if obj == nil {
			lastErr = ErrNoJSONObject
			continue
		}
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoJSONObject, lastErr)
}

var (
	fencedPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?s)```json\\s*\n(.*?)\n\\s*```"),
		regexp.MustCompile("(?s)```\\s*\n(.*?)\n\\s*```"),
		regexp.MustCompile("`(\\{.*?\\})`"),
	}
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`(\{|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// extractJSON pulls a JSON object out of markdown or conversational text.
func extractJSON(content string) string {
	for _, re := range fencedPatterns {
		if m := re.FindStringSubmatch(content); len(m) > 1 {
			return m[1]
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		return content[start : end+1]
	}
	return content
}

// repairJSON fixes common model formatting mistakes.
func repairJSON(content string) string {
	repaired := strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))

	repaired = trailingComma.ReplaceAllString(repaired, "$1")

	repaired += strings.Repeat("}", max(0, strings.Count(repaired, "{")-strings.Count(repaired, "}")))
	repaired += strings.Repeat("]", max(0, strings.Count(repaired, "[")-strings.Count(repaired, "]")))

	repaired = unquotedKey.ReplaceAllString(repaired, `$1"$2":`)

	// Single-quoted objects only when no double quote is present.
	if !strings.Contains(repaired, `"`) && strings.Contains(repaired, `'`) {
		repaired = strings.ReplaceAll(repaired, `'`, `"`)
	}
	return repaired
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrNotANumber, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotANumber, n)
		}
		return i, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotANumber, v)
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(data)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
