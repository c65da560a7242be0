package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Some models emit tool arguments as two JSON objects run together, e.g.
// {"tableName":"users","numRows":5{"tableName":"users","numRows":5}.
// SanitizeToolArguments is a bounded patch for that failure mode only. It is
// not a JSON repair algorithm: anything the strategies below cannot fix is
// returned untouched so that decoding fails loudly upstream.

var (
	digitBeforeBrace = regexp.MustCompile(`\d+\{`)
	digitBraceSplit  = regexp.MustCompile(`(\d+)(\{)`)
	flatObject       = regexp.MustCompile(`\{[^{}]*\}`)
)

// repairStrategy is one candidate rewrite; ok=false means not applicable.
type repairStrategy struct {
	name  string
	apply func(s string) (string, bool)
}

var repairStrategies = []repairStrategy{
	{"as-is", func(s string) (string, bool) {
		return s, true
	}},
	{"truncate-at-digit-brace", func(s string) (string, bool) {
		opens, closes := strings.Count(s, "{"), strings.Count(s, "}")
		if opens <= 1 || opens <= closes {
			return "", false
		}
		m := digitBraceSplit.FindStringSubmatchIndex(s)
		if m == nil {
			return "", false
		}
		return s[:m[3]] + "}", true
	}},
	{"from-second-brace", func(s string) (string, bool) {
		if len(s) < 2 {
			return "", false
		}
		idx := strings.IndexByte(s[1:], '{')
		if idx < 0 {
			return "", false
		}
		return s[idx+1:], true
	}},
	{"split-concatenated", func(s string) (string, bool) {
		parts := strings.Split(s, "}{")
		if len(parts) < 2 {
			return "", false
		}
		return "{" + parts[1], true
	}},
	{"first-flat-object", func(s string) (string, bool) {
		m := flatObject.FindString(s)
		return m, m != ""
	}},
}

// SanitizeToolArguments returns the first strategy output that parses as JSON.
// Inputs that do not look like concatenated objects are returned unchanged.
func SanitizeToolArguments(raw string) string {
	fixed, _ := repairToolArguments(raw)
	return fixed
}

// repairToolArguments is SanitizeToolArguments plus the name of the strategy
// that succeeded ("" when none applied).
func repairToolArguments(raw string) (string, string) {
	if !strings.Contains(raw, "}{") && !digitBeforeBrace.MatchString(raw) {
		return raw, ""
	}

	for _, st := range repairStrategies {
		candidate, ok := st.apply(raw)
		if ok && json.Valid([]byte(candidate)) {
			return candidate, st.name
		}
	}
	return raw, ""
}
