package validate_test

import (
	"errors"
	"strings"
	"testing"

	"reportline/internal/domain"
	"reportline/internal/validate"
)

func cols() []domain.ExpectationColumn {
	return []domain.ExpectationColumn{
		{Name: "site", NullsOK: false},
		{Name: "headcount", NullsOK: false, MustBeInt: true},
		{Name: "notes", NullsOK: true},
	}
}

func TestValuesAccepts(t *testing.T) {
	err := validate.Values(cols(), map[string]string{
		"site":      "north",
		"headcount": "-42",
	})
	if err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
}

func TestValuesCollectsAllProblems(t *testing.T) {
	err := validate.Values(cols(), map[string]string{
		"headcount": "4.5",
		"bogus":     "x",
	})
	var verr validate.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", verr.Problems)
	}
	msg := err.Error()
	for _, want := range []string{`"site" cannot be null`, `"headcount" must be an integer`, `unknown column "bogus"`} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestValuesNullableSkipsIntCheck(t *testing.T) {
	columns := []domain.ExpectationColumn{{Name: "score", NullsOK: true, MustBeInt: true}}
	if err := validate.Values(columns, map[string]string{}); err != nil {
		t.Fatalf("empty nullable rejected: %v", err)
	}
	if err := validate.Values(columns, map[string]string{"score": "ten"}); err == nil {
		t.Fatalf("non-integer accepted")
	}
}

func TestColumns(t *testing.T) {
	if err := validate.Columns(cols()); err != nil {
		t.Fatalf("valid columns rejected: %v", err)
	}
	dup := []domain.ExpectationColumn{{Name: "a"}, {Name: "a"}}
	if err := validate.Columns(dup); err == nil {
		t.Fatalf("duplicate column accepted")
	}
	if err := validate.Columns([]domain.ExpectationColumn{{Name: ""}}); err == nil {
		t.Fatalf("empty column name accepted")
	}
}
