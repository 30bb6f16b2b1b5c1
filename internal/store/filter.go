package store

import (
	"fmt"
	"strings"

	"github.com/roach88/patchwork/internal/diag"
	"github.com/roach88/patchwork/internal/ir"
)

// Filter narrows a journal read to rows whose columns equal the given
// values. Zero fields match every row.
type Filter struct {
	Owner   string
	Module  ir.ModuleID
	Code    diag.Code
	Outcome ir.Outcome
}

// filterColumns lists the filterable columns of each journal table.
var filterColumns = map[string]map[string]bool{
	"modules":     {"module_id": true},
	"attempts":    {"owner": true, "module_id": true, "outcome": true},
	"diagnostics": {"owner": true, "module_id": true, "code": true},
}

// predicates returns the non-zero fields as (column, value) pairs in a
// fixed order, so the same filter always compiles to the same SQL.
func (f Filter) predicates() [][2]string {
	var preds [][2]string
	add := func(col, val string) {
		if val != "" {
			preds = append(preds, [2]string{col, val})
		}
	}
	add("owner", f.Owner)
	add("module_id", string(f.Module))
	add("code", string(f.Code))
	add("outcome", string(f.Outcome))
	return preds
}

// where compiles f into a WHERE clause over table scoped to session.
// Values are always bound as parameters, never interpolated.
func (f Filter) where(table, session string) (string, []any, error) {
	cols, ok := filterColumns[table]
	if !ok {
		return "", nil, fmt.Errorf("unknown journal table: %s", table)
	}

	clauses := []string{"session_id = ?"}
	args := []any{session}
	for _, p := range f.predicates() {
		if !cols[p[0]] {
			return "", nil, fmt.Errorf("%s cannot be filtered by %s", table, p[0])
		}
		clauses = append(clauses, p[0]+" = ?")
		args = append(args, p[1])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
