// Package eval scores predicted answers against gold answers with the
// SQuAD-style exact match and token F1 metrics.
package eval

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// ErrNoGold is returned when the gold set is empty.
var ErrNoGold = errors.New("eval: no gold answers")

var articles = regexp.MustCompile(`\b(a|an|the)\b`)

// Normalize lowercases s and strips ASCII punctuation, English articles,
// and redundant whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if isASCIIPunct(r) {
			return -1
		}
		return r
	}, s)
	s = articles.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func isASCIIPunct(r rune) bool {
	return r < 0x80 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r)
}

// ExactMatch reports whether the normalized answers are equal.
func ExactMatch(prediction, gold string) bool {
	return Normalize(prediction) == Normalize(gold)
}

// F1 returns token-level F1, precision and recall. Yes/no style answers
// score zero unless they match exactly.
func F1(prediction, gold string) (f1, precision, recall float64) {
	p, g := Normalize(prediction), Normalize(gold)
	if (isPolar(p) || isPolar(g)) && p != g {
		return 0, 0, 0
	}

	pTokens, gTokens := strings.Fields(p), strings.Fields(g)
	counts := make(map[string]int, len(gTokens))
	for _, tok := range gTokens {
		counts[tok]++
	}
	same := 0
	for _, tok := range pTokens {
		if counts[tok] > 0 {
			counts[tok]--
			same++
		}
	}
	if same == 0 {
		return 0, 0, 0
	}
	precision = float64(same) / float64(len(pTokens))
	recall = float64(same) / float64(len(gTokens))
	return 2 * precision * recall / (precision + recall), precision, recall
}

func isPolar(s string) bool {
	return s == "yes" || s == "no" || s == "noanswer"
}

// Metrics are averages over the gold set.
type Metrics struct {
	EM        float64 `json:"em"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"prec"`
	Recall    float64 `json:"recall"`
	Samples   int     `json:"samples"`
	Missing   int     `json:"missing"`
}

// Evaluate scores predictions against gold. A gold id without a
// prediction counts as zero on every metric.
func Evaluate(predictions, gold map[string]any, logger *slog.Logger) (Metrics, error) {
	if len(gold) == 0 {
		return Metrics{}, ErrNoGold
	}
	if logger == nil {
		logger = slog.Default()
	}

	var m Metrics
	for _, id := range slices.Sorted(maps.Keys(gold)) {
		pred, ok := predictions[id]
		if !ok {
			logger.Warn("missing prediction", "component", "eval", "id", id)
			m.Missing++
			continue
		}
		p, g := answerText(pred), answerText(gold[id])
		if ExactMatch(p, g) {
			m.EM++
		}
		f1, prec, rec := F1(p, g)
		m.F1 += f1
		m.Precision += prec
		m.Recall += rec
	}

	n := float64(len(gold))
	m.Samples = len(gold)
	m.EM /= n
	m.F1 /= n
	m.Precision /= n
	m.Recall /= n
	return m, nil
}

// answerText flattens an answer. Objects become "k: v" pairs in key order.
func answerText(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]any:
		parts := make([]string, 0, len(a))
		for _, k := range slices.Sorted(maps.Keys(a)) {
			parts = append(parts, fmt.Sprintf("%s: %v", k, a[k]))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(a)
	}
}
