package ollama

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

const systemPrompt = "You are an expert in evaluating the cultural relevance of images."

const rubric = `1 - Not relevant: nothing in the image connects to the culture.
2 - Minimally relevant: slight or superficial links, isolated elements.
3 - Somewhat relevant: identifiable references that stay generic or limited.
4 - Relevant: accurate, well integrated references to the culture.
5 - Highly relevant: the culture is central, immersive and accurately shown.`

func buildJudgmentPrompt(in domain.JudgmentInput) string {
	culture := capitalize(in.Culture)
	entities := strings.Join(in.EntityNames, ", ")

	return fmt.Sprintf(`We want to assess how relevant an image is to a given culture.
The image has been matched to: %s.
Encyclopedia context about it:
%s

Using the image and the context, rate how culturally relevant the image is to %s.
Consider cultural symbols, styles, traditions and any feature tied to %s.
Scale:
%s

Return strict JSON: {"score": <integer 1-5>, "reasoning": "<one or two sentences>"}.
No markdown, no extra keys.
`, entities, in.ContextText, culture, culture, rubric)
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
