package domain

import (
	"fmt"
	"strings"
)

const (
	MinScore = 1
	MaxScore = 5
)

type ContextMode string

const (
	ContextSingle ContextMode = "single"
	ContextMulti  ContextMode = "multi"
)

func ParseContextMode(v string) (ContextMode, error) {
	switch ContextMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", ContextSingle:
		return ContextSingle, nil
	case ContextMulti:
		return ContextMulti, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse context mode", fmt.Errorf("unsupported context mode %q", v))
	}
}

// ContextModeFromFlag maps the boolean multi-page flag of the HTTP form.
func ContextModeFromFlag(multi bool) ContextMode {
	if multi {
		return ContextMulti
	}
	return ContextSingle
}

// ScoreRecord is the verdict for one culture label. A nil Score means the
// judgment model produced no usable number and must be shown as such.
type ScoreRecord struct {
	Culture   string `json:"culture"`
	Score     *int   `json:"score"`
	Reasoning string `json:"reasoning"`
}

func (r ScoreRecord) Absent() bool {
	return r.Score == nil
}

// JudgmentInput is what the judgment model sees for one culture label.
type JudgmentInput struct {
	Model       string
	Image       []byte
	ContextText string
	EntityNames []string
	Culture     string
}

// JudgmentModels maps public judgment-model names to backend model tags.
type JudgmentModels map[string]string

func (m JudgmentModels) Resolve(name string) (string, error) {
	tag, ok := m[strings.TrimSpace(name)]
	if !ok || tag == "" {
		return "", WrapError(ErrInvalidInput, "resolve judgment model", fmt.Errorf("unsupported judgment model %q", name))
	}
	return tag, nil
}
