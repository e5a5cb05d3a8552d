// Package query compiles the catalog query language into SQL.
//
// A filter is a list of criteria. Each criterion has the form
//
//	[-]kind[:function[:arg1[:arg2...]]]   or   arg1
//
// where a leading "-" excludes the matching files. A bare argument matches
// any tag, exactly or, when it contains "%", as a LIKE pattern. A kind with
// an empty or "*" argument matches files having that field at all.
//
// Before parsing, "%{ ... }%" sections are evaluated as template actions,
// so a criterion can compute dates or refer to the current file:
//
//	file_date:>:%{days_ago 7}%
//	ext:%{ext}%
//
// Criteria are dispatched to field strategies. Built-in file columns are
// handled by the file strategy; any other kind is treated as a tag kind.
// Each strategy folds its criteria into one subquery, and the subqueries
// are combined left to right: inclusions intersect and exclusions
// subtract. A filter starting with an exclusion subtracts from every
// searchable file.
//
// A sort is a list of fields, each "[-][#]kind": "-" sorts descending and
// "#" compares numerically. It compiles into a SortPlan that materializes
// the working set with one column per field and reads the keys back in
// order. Ties keep the working set's previous order.
package query
