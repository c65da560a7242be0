package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// codeFencePattern matches ```json openers and ``` closers wherever they appear.
	codeFencePattern = regexp.MustCompile("```json\\s*|\\s*```")

	// thinkTagPattern matches a leading <think>...</think> block some models emit.
	thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
)

// StripCodeFences removes Markdown code-fence wrapping and a leading reasoning
// block from model output.
func StripCodeFences(content string) string {
	content = thinkTagPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(codeFencePattern.ReplaceAllString(content, ""))
}

// ParseJSONResponse strips fences from content and decodes it into T.
func ParseJSONResponse[T any](content string) (T, error) {
	var result T
	cleaned := StripCodeFences(content)
	if cleaned == "" {
		return result, fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return result, fmt.Errorf("parse JSON response: %w", err)
	}
	return result, nil
}
