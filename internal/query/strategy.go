package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Clause is a SQL fragment with its positional arguments.
type Clause struct {
	SQL  string
	Args []any
}

// Subquery selects a column named id holding file keys.
type Subquery struct {
	Excluding bool
	Clause
}

// Part collects the criteria folded into one strategy.
type Part struct {
	Include []Clause
	Exclude []Clause
}

// Accumulator holds every strategy's part, keyed by strategy name, so
// several criteria for one strategy combine instead of overwriting.
type Accumulator map[string]*Part

// Part returns the part of the named strategy, creating it when missing.
func (a Accumulator) Part(name string) *Part {
	p, ok := a[name]
	if !ok {
		p = &Part{}
		a[name] = p
	}
	return p
}

// SortTerm is one strategy's contribution to a sort. Join is a LEFT JOIN
// target keyed on the working set's file_key, or empty when Column only
// needs tables already joined.
type SortTerm struct {
	Join    string
	Column  string
	OrderBy string
}

// Strategy owns matching and sorting for some field kinds.
type Strategy interface {
	// Name identifies the strategy in an Accumulator.
	Name() string

	// Owns reports whether the strategy handles kind. A strategy owning
	// AnyKind is generic and is consulted after every specific one.
	Owns(kind string) bool

	// Prepare folds one criterion into the strategy's part of acc.
	Prepare(acc Accumulator, c Criterion) error

	// Process emits the strategy's subquery, if it received any criteria.
	Process(acc Accumulator) (Subquery, bool)

	// SortTerm returns how to sort by kind. alias names the column in
	// the materialized sort table.
	SortTerm(s Sort, alias string) SortTerm
}

// fold turns a part into one subquery: inclusions intersect, exclusions
// are united and subtracted.
func fold(p *Part) (Subquery, bool) {
	if p == nil || (len(p.Include) == 0 && len(p.Exclude) == 0) {
		return Subquery{}, false
	}

	if len(p.Include) == 0 {
		return Subquery{Excluding: true, Clause: compound(" UNION ", p.Exclude)}, true
	}

	sq := compound(" INTERSECT ", p.Include)
	if len(p.Exclude) > 0 {
		ex := compound(" UNION ", p.Exclude)
		sq = Clause{
			SQL:  sq.SQL + " EXCEPT " + wrap(ex.SQL),
			Args: append(sq.Args, ex.Args...),
		}
	}
	return Subquery{Clause: sq}, true
}

// compound joins clauses with op. Each clause is wrapped so it stays a
// simple SELECT inside the compound.
func compound(op string, clauses []Clause) Clause {
	var sqls []string
	var args []any
	for _, c := range clauses {
		sqls = append(sqls, wrap(c.SQL))
		args = append(args, c.Args...)
	}
	return Clause{SQL: strings.Join(sqls, op), Args: args}
}

func wrap(sql string) string {
	return "SELECT id FROM (" + sql + ")"
}

// condition builds the WHERE condition applying fn to column.
// numeric converts arguments to numbers before binding them.
func condition(column string, c Criterion, numeric bool) (Clause, error) {
	arg := func(v string) any {
		if !numeric {
			return v
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	}

	switch c.Function {
	case FnAny:
		return Clause{SQL: column + " IS NOT NULL AND " + column + " <> ''"}, nil

	case FnIn:
		if len(c.Values) == 0 {
			return Clause{}, fmt.Errorf("%w: %s:%s needs a value", ErrInvalidCriterion, c.Kind, c.Function)
		}
		args := make([]any, len(c.Values))
		for i, v := range c.Values {
			args[i] = arg(v)
		}
		return Clause{SQL: column + " IN (" + placeholders(len(args)) + ")", Args: args}, nil

	case FnLike:
		if len(c.Values) == 0 {
			return Clause{}, fmt.Errorf("%w: %s:%s needs a pattern", ErrInvalidCriterion, c.Kind, c.Function)
		}
		var conds []string
		var args []any
		for _, v := range c.Values {
			conds = append(conds, column+" LIKE ?")
			args = append(args, v)
		}
		return Clause{SQL: "(" + strings.Join(conds, " OR ") + ")", Args: args}, nil

	case FnGreater, FnGE, FnLess, FnLE:
		if len(c.Values) != 1 {
			return Clause{}, fmt.Errorf("%w: %s:%s needs one value", ErrInvalidCriterion, c.Kind, c.Function)
		}
		return Clause{SQL: column + " " + c.Function + " ?", Args: []any{arg(c.Values[0])}}, nil

	case FnBetween:
		if len(c.Values) != 2 {
			return Clause{}, fmt.Errorf("%w: %s:%s needs two values", ErrInvalidCriterion, c.Kind, c.Function)
		}
		return Clause{SQL: column + " BETWEEN ? AND ?", Args: []any{arg(c.Values[0]), arg(c.Values[1])}}, nil
	}

	return Clause{}, fmt.Errorf("%w: %q", ErrUnsupportedFunction, c.Function)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// sqlString quotes s as a SQL string literal.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func orderBy(column string, s Sort) string {
	expr := column
	if s.Numeric {
		expr = "CAST(" + column + " AS REAL)"
	}
	if s.Descending {
		return expr + " DESC"
	}
	return expr + " ASC"
}

// isNumeric reports whether every value parses as a number.
func isNumeric(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}
