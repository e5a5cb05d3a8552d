package query

import (
	"errors"
	"strings"
)

// AnyKind matches every field kind.
const AnyKind = "*"

// Matching functions understood by the built-in strategies.
const (
	FnIn      = "in"
	FnLike    = "%"
	FnAny     = "any"
	FnGreater = ">"
	FnGE      = ">="
	FnLess    = "<"
	FnLE      = "<="
	FnBetween = "between"
)

var (
	// ErrUnsupportedFunction reports a criterion function no strategy implements.
	ErrUnsupportedFunction = errors.New("unsupported function")

	// ErrInvalidCriterion reports a criterion with the wrong number of arguments.
	ErrInvalidCriterion = errors.New("invalid criterion")
)

// Criterion is one parsed filter token.
type Criterion struct {
	Excluding bool
	Kind      string
	Function  string
	Values    []string // nil for FnAny
}

// Explode parses a criterion token. It returns false for tokens that
// select nothing (":", "::" and the empty string).
func Explode(token string) (Criterion, bool) {
	if token == "" || token == ":" || token == "::" {
		return Criterion{}, false
	}

	var c Criterion
	if token[0] == '-' {
		c.Excluding = true
		token = token[1:]
	}

	parts := strings.Split(token, ":")
	switch len(parts) {
	case 1:
		c.Kind = AnyKind
		c.Function = inferFunction(token)
		c.Values = []string{token}
	case 2:
		c.Kind = parts[0]
		c.Function = inferFunction(token)
		c.Values = parts[1:]
	default:
		c.Kind = parts[0]
		c.Function = parts[1]
		c.Values = parts[2:]
	}

	if c.Kind != AnyKind && len(c.Values) == 1 && (c.Values[0] == "" || c.Values[0] == "*") {
		c.Function = FnAny
		c.Values = nil
	}

	return c, true
}

func inferFunction(token string) string {
	if strings.Contains(token, "%") {
		return FnLike
	}
	return FnIn
}

// Sort is one parsed sort field.
type Sort struct {
	Kind       string
	Descending bool
	Numeric    bool
}

// ParseSort parses a sort token. It returns false for the wildcard kind.
func ParseSort(token string) (Sort, bool) {
	var s Sort
	if strings.HasPrefix(token, "-") {
		s.Descending = true
		token = token[1:]
	}
	if strings.HasPrefix(token, "#") {
		s.Numeric = true
		token = token[1:]
	}
	s.Kind = token

	if s.Kind == "" || s.Kind == AnyKind {
		return Sort{}, false
	}
	return s, true
}
