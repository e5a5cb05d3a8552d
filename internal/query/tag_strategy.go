package query

// TagStrategy matches and sorts on tag values. It owns every kind, so it
// is consulted last; the kind names the tag kind and AnyKind matches tags
// of any kind.
type TagStrategy struct{}

func (TagStrategy) Name() string { return "tag" }

func (TagStrategy) Owns(string) bool { return true }

func (s TagStrategy) Prepare(acc Accumulator, c Criterion) error {
	column := "value"
	numeric := false
	switch c.Function {
	case FnGreater, FnGE, FnLess, FnLE, FnBetween:
		if isNumeric(c.Values) {
			column = "CAST(value AS REAL)"
			numeric = true
		}
	}

	cond, err := condition(column, c, numeric)
	if err != nil {
		return err
	}

	clause := Clause{SQL: "SELECT file_key AS id FROM tag WHERE " + cond.SQL, Args: cond.Args}
	if c.Kind != AnyKind {
		clause.SQL += " AND kind = ?"
		clause.Args = append(clause.Args, c.Kind)
	}

	part := acc.Part(s.Name())
	if c.Excluding {
		part.Exclude = append(part.Exclude, clause)
	} else {
		part.Include = append(part.Include, clause)
	}
	return nil
}

func (s TagStrategy) Process(acc Accumulator) (Subquery, bool) {
	return fold(acc[s.Name()])
}

// SortTerm joins the smallest value of the kind per file, so files carrying
// several values appear once and files without the tag are kept.
func (TagStrategy) SortTerm(s Sort, alias string) SortTerm {
	table := alias + "_tag"
	value := "value"
	if s.Numeric {
		value = "CAST(value AS REAL)"
	}
	return SortTerm{
		Join: "(SELECT file_key, MIN(" + value + ") AS value FROM tag WHERE kind = " + sqlString(s.Kind) +
			" GROUP BY file_key) AS " + table + " ON " + table + ".file_key = current_set.file_key",
		Column:  table + ".value AS " + alias,
		OrderBy: orderBy(alias, s),
	}
}
