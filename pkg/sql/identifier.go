package sql

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier indicates a name that may not be interpolated into SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier accepts only plain unquoted identifiers. It is the gate for
// table names that arrive from model output.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}
