package query

import (
	"slices"

	"cobiv/internal/mediatypes"
)

// FileStrategy matches and sorts on columns of the file table.
type FileStrategy struct{}

// fileFields maps field kinds to file columns; true marks numeric columns.
var fileFields = map[string]bool{
	"path":      false,
	"filename":  false,
	"ext":       false,
	"size":      true,
	"file_date": true,
}

// FileFields lists the kinds owned by FileStrategy, sorted.
func FileFields() []string {
	kinds := make([]string, 0, len(fileFields))
	for k := range fileFields {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (FileStrategy) Name() string { return "file" }

func (FileStrategy) Owns(kind string) bool {
	_, ok := fileFields[kind]
	return ok
}

func (s FileStrategy) Prepare(acc Accumulator, c Criterion) error {
	if c.Kind == "ext" && c.Function == FnIn {
		values := make([]string, len(c.Values))
		for i, v := range c.Values {
			values[i] = mediatypes.Normalize(v)
		}
		c.Values = values
	}

	cond, err := condition(c.Kind, c, fileFields[c.Kind])
	if err != nil {
		return err
	}

	clause := Clause{SQL: "SELECT id FROM file WHERE " + cond.SQL, Args: cond.Args}
	part := acc.Part(s.Name())
	if c.Excluding {
		part.Exclude = append(part.Exclude, clause)
	} else {
		part.Include = append(part.Include, clause)
	}
	return nil
}

func (s FileStrategy) Process(acc Accumulator) (Subquery, bool) {
	return fold(acc[s.Name()])
}

func (FileStrategy) SortTerm(s Sort, alias string) SortTerm {
	return SortTerm{
		Join:    "file ON file.id = current_set.file_key",
		Column:  "file." + s.Kind + " AS " + alias,
		OrderBy: orderBy(alias, s),
	}
}
