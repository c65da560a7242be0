package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionError reports a bind parameter that libinjection flags as SQL.
type InjectionError struct {
	Position    int    // 1-based, matching $N placeholders
	Fingerprint string // libinjection fingerprint
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("parameter $%d rejected: SQL injection pattern detected (fingerprint %s)", e.Position, e.Fingerprint)
}

// CheckParameterForInjection runs libinjection over a single value. Only strings
// are inspected; other types cannot carry SQL text.
func CheckParameterForInjection(position int, value any) *InjectionError {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionError{Position: position, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckAllParameters returns the first flagged positional parameter, or nil.
func CheckAllParameters(params []any) error {
	for i, p := range params {
		if ierr := CheckParameterForInjection(i+1, p); ierr != nil {
			return ierr
		}
	}
	return nil
}
