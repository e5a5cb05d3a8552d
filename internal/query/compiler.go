package query

import (
	"fmt"
	"slices"
	"strings"

	"cobiv/internal/logging"
	"cobiv/internal/metrics"
)

const (
	presortTable = "temp_presort_table"

	allSearchable = "SELECT id FROM file WHERE searchable = 1"
)

// Query is a compiled filter. It selects file id and name of every
// matching searchable file, in file key order.
type Query struct {
	SQL  string
	Args []any
}

// SortPlan reorders the working set. Setup materializes the working set
// with one column per sort field, Ordering reads its file keys back in
// order and Teardown drops the materialized table.
type SortPlan struct {
	Setup    string
	Ordering string
	Teardown string
}

// Empty reports whether the plan has nothing to sort by.
func (p SortPlan) Empty() bool {
	return p.Ordering == ""
}

// Compiler turns criteria and sort tokens into SQL.
type Compiler struct {
	eval       *Evaluator
	strategies []Strategy
}

// DefaultStrategies returns the built-in strategies.
func DefaultStrategies() []Strategy {
	return []Strategy{FileStrategy{}, TagStrategy{}}
}

// NewCompiler creates a compiler. Strategies owning AnyKind are moved
// after the specific ones, keeping relative order otherwise. A nil eval
// renders templates without field lookups.
func NewCompiler(eval *Evaluator, strategies ...Strategy) *Compiler {
	if eval == nil {
		eval = NewEvaluator(nil, nil)
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}

	ordered := slices.Clone(strategies)
	slices.SortStableFunc(ordered, func(a, b Strategy) int {
		ga, gb := a.Owns(AnyKind), b.Owns(AnyKind)
		switch {
		case ga == gb:
			return 0
		case gb:
			return -1
		default:
			return 1
		}
	})

	return &Compiler{eval: eval, strategies: ordered}
}

func (c *Compiler) strategyFor(kind string) Strategy {
	for _, s := range c.strategies {
		if s.Owns(kind) {
			return s
		}
	}
	return nil
}

// CompileFilter compiles criteria tokens. No effective criterion selects
// every searchable file.
func (c *Compiler) CompileFilter(tokens []string) (q Query, err error) {
	defer func() { recordCompilation("filter", err) }()

	acc := Accumulator{}
	for _, token := range tokens {
		rendered, err := c.eval.Render(token)
		if err != nil {
			return Query{}, err
		}

		crit, ok := Explode(rendered)
		if !ok {
			continue
		}

		s := c.strategyFor(crit.Kind)
		if s == nil {
			return Query{}, fmt.Errorf("%w: no strategy for kind %q", ErrInvalidCriterion, crit.Kind)
		}
		if err := s.Prepare(acc, crit); err != nil {
			return Query{}, fmt.Errorf("criterion %q: %w", token, err)
		}
	}

	var combined strings.Builder
	var args []any
	for _, s := range c.strategies {
		sq, ok := s.Process(acc)
		if !ok {
			continue
		}

		if sq.Excluding && combined.Len() == 0 {
			combined.WriteString(allSearchable)
		}
		switch {
		case sq.Excluding:
			combined.WriteString(" EXCEPT ")
		case combined.Len() > 0:
			combined.WriteString(" INTERSECT ")
		}
		combined.WriteString(wrap(sq.SQL))
		args = append(args, sq.Args...)
	}

	q = Query{SQL: "SELECT f.id, f.name FROM file f WHERE f.searchable = 1"}
	if combined.Len() > 0 {
		q.SQL += " AND f.id IN (" + combined.String() + ")"
		q.Args = args
	}
	q.SQL += " ORDER BY f.id"

	logging.Debug("Compiled filter %q: %s %v", tokens, q.SQL, q.Args)
	return q, nil
}

// CompileSort compiles sort tokens into a plan over the working set.
// Wildcard fields are ignored; a plan without fields is Empty.
func (c *Compiler) CompileSort(tokens []string) (plan SortPlan, err error) {
	defer func() { recordCompilation("sort", err) }()

	columns := []string{"current_set.file_key AS file_key"}
	var joins, orders []string

	for _, token := range tokens {
		field, ok := ParseSort(token)
		if !ok {
			continue
		}

		s := c.strategyFor(field.Kind)
		if s == nil {
			return SortPlan{}, fmt.Errorf("%w: no strategy for sort kind %q", ErrInvalidCriterion, field.Kind)
		}

		term := s.SortTerm(field, fmt.Sprintf("sort_%d", len(orders)))
		if term.Join != "" && !slices.Contains(joins, term.Join) {
			joins = append(joins, term.Join)
		}
		columns = append(columns, term.Column)
		orders = append(orders, term.OrderBy)
	}

	if len(orders) == 0 {
		return SortPlan{}, nil
	}

	var setup strings.Builder
	setup.WriteString("CREATE TEMP TABLE " + presortTable + " AS SELECT ")
	setup.WriteString(strings.Join(columns, ", "))
	setup.WriteString(" FROM current_set")
	for _, j := range joins {
		setup.WriteString(" LEFT JOIN " + j)
	}
	setup.WriteString(" ORDER BY current_set.position")

	plan = SortPlan{
		Setup:    setup.String(),
		Ordering: "SELECT file_key FROM " + presortTable + " ORDER BY " + strings.Join(orders, ", ") + ", rowid",
		Teardown: "DROP TABLE IF EXISTS temp." + presortTable,
	}

	logging.Debug("Compiled sort %q: %s; %s", tokens, plan.Setup, plan.Ordering)
	return plan, nil
}

func recordCompilation(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.QueryCompilationsTotal.WithLabelValues(kind, status).Inc()
}
