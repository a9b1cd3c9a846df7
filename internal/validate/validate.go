package validate

import (
	"fmt"
	"regexp"
	"strings"

	"reportline/internal/domain"
)

var intPattern = regexp.MustCompile(`^-?\d+$`)

// ValidationError carries every rule violation found in one submission
// so callers can report them all at once.
type ValidationError struct {
	Problems []string
}

func (e ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Problems, "; ")
}

// Values checks a row of submitted values against an expectation's
// column rules. Unknown keys are rejected so typos do not silently
// drop data.
func Values(columns []domain.ExpectationColumn, values map[string]string) error {
	var problems []string
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col.Name] = true
		v, ok := values[col.Name]
		if !ok || v == "" {
			if !col.NullsOK {
				problems = append(problems, fmt.Sprintf("column %q cannot be null", col.Name))
			}
			continue
		}
		if col.MustBeInt && !intPattern.MatchString(v) {
			problems = append(problems, fmt.Sprintf("column %q must be an integer (got %q)", col.Name, v))
		}
	}
	for key := range values {
		if !known[key] {
			problems = append(problems, fmt.Sprintf("unknown column %q", key))
		}
	}
	if len(problems) > 0 {
		return ValidationError{Problems: problems}
	}
	return nil
}

// Columns checks an expectation's column definitions themselves.
func Columns(columns []domain.ExpectationColumn) error {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return fmt.Errorf("expectation column with empty name")
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate expectation column %q", col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}
