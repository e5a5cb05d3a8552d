package query

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	openAction  = "%{"
	closeAction = "}%"
)

// FieldSource exposes the fields of the file the session currently points
// at. Field returns "" for unknown names or when there is no current file.
type FieldSource interface {
	Field(name string) string
}

// FieldNames lists the field lookup functions available to templates.
var FieldNames = []string{"id", "name", "filename", "path", "ext", "size", "file_date"}

// Evaluator expands "%{ ... }%" actions in criterion tokens.
type Evaluator struct {
	funcs template.FuncMap
}

// NewEvaluator creates an evaluator reading file fields from src, which
// may be nil. now supplies the clock; nil means time.Now.
func NewEvaluator(src FieldSource, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}

	funcs := template.FuncMap{
		"now": func() int64 {
			return now().Unix()
		},
		"today": func() int64 {
			return midnight(now()).Unix()
		},
		"days_ago": func(n int) int64 {
			return midnight(now()).AddDate(0, 0, -n).Unix()
		},
		"hours_ago": func(n int) int64 {
			return now().Add(-time.Duration(n) * time.Hour).Unix()
		},
		"date": func(s string) (int64, error) {
			t, err := time.ParseInLocation(time.DateOnly, s, now().Location())
			if err != nil {
				return 0, err
			}
			return t.Unix(), nil
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}

	for _, name := range FieldNames {
		name := name
		funcs[name] = func() string {
			if src == nil {
				return ""
			}
			return src.Field(name)
		}
	}

	return &Evaluator{funcs: funcs}
}

// Render returns text with every action replaced by its output.
func (e *Evaluator) Render(text string) (string, error) {
	if !strings.Contains(text, openAction) {
		return text, nil
	}

	src := strings.ReplaceAll(strings.ReplaceAll(text, openAction, "{{"), closeAction, "}}")

	tmpl, err := template.New("criterion").Funcs(e.funcs).Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", text, err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, nil); err != nil {
		return "", fmt.Errorf("failed to evaluate %q: %w", text, err)
	}
	return b.String(), nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
