package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

const verdictRationaleLimit = 200

var looseScorePattern = regexp.MustCompile(`(?i)score["']?\s*[:=]\s*["']?(\d+)`)

// Verdict is the parsed judgment-model reply for one culture label.
type Verdict struct {
	Score     *int
	Reasoning string
}

// ParseVerdict never fails: it tries a JSON object first, then a loose
// "score: N" pattern, and finally returns an absent score.
func ParseVerdict(raw string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = unparsedVerdict(raw)
		}
	}()

	cleaned := scrubControl(raw)
	if parsed, ok := parseVerdictObject(cleaned); ok {
		return parsed
	}
	if m := looseScorePattern.FindStringSubmatch(cleaned); len(m) == 2 {
		score := clampScore(parseDigits(m[1]))
		return Verdict{
			Score:     &score,
			Reasoning: truncateRunes(strings.TrimSpace(cleaned), verdictRationaleLimit),
		}
	}
	return unparsedVerdict(cleaned)
}

func unparsedVerdict(text string) Verdict {
	return Verdict{
		Reasoning: "could not parse model output: " + truncateRunes(strings.TrimSpace(text), verdictRationaleLimit),
	}
}

func parseVerdictObject(text string) (Verdict, bool) {
	for _, candidate := range jsonObjectCandidates(text) {
		if !strings.Contains(candidate, `"reasoning"`) {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
			// raw line breaks and tabs inside string values are not valid JSON
			if err := json.Unmarshal([]byte(flattenLayout(candidate)), &fields); err != nil {
				continue
			}
		}
		reasoningRaw, ok := fields["reasoning"]
		if !ok {
			continue
		}
		score, ok := decodeScore(fields["score"])
		if !ok {
			continue
		}
		return Verdict{Score: score, Reasoning: decodeReasoning(reasoningRaw)}, true
	}
	return Verdict{}, false
}

// jsonObjectCandidates returns every balanced {...} span in order of its
// opening brace, followed by the outermost first-to-last brace span.
func jsonObjectCandidates(text string) []string {
	var out []string
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchingBrace(text, start); end > start {
			out = append(out, text[start:end+1])
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}

func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// decodeScore reports ok=false only when the field holds something that is not
// a score at all; null or missing yields an absent score.
func decodeScore(raw json.RawMessage) (*int, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, true
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		score := clampScore(roundScore(number))
		return &score, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, false
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "null") || strings.EqualFold(text, "n/a") {
		return nil, true
	}
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false
	}
	score := clampScore(roundScore(number))
	return &score, true
}

func decodeReasoning(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(raw))
}

func roundScore(v float64) int {
	switch {
	case math.IsNaN(v):
		return domain.MinScore
	case v >= math.MaxInt32:
		return domain.MaxScore
	case v <= math.MinInt32:
		return domain.MinScore
	}
	return int(math.Round(v))
}

func parseDigits(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		// only digits reach here, so the failure is an overflow
		return domain.MaxScore
	}
	return n
}

func clampScore(v int) int {
	if v < domain.MinScore {
		return domain.MinScore
	}
	if v > domain.MaxScore {
		return domain.MaxScore
	}
	return v
}

// scrubControl replaces control characters with spaces, keeping line breaks
// and tabs.
func scrubControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

func flattenLayout(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
