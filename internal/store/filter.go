package store

import (
	"fmt"
	"sort"
	"strings"
)

// Filter selects chunks by exact metadata equality. Only known metadata
// columns are allowed; anything else is rejected before touching the database.
type Filter map[string]string

var filterColumns = map[string]bool{
	"source":      true,
	"file_name":   true,
	"source_type": true,
	"event_type":  true,
}

// BySource returns a filter matching every chunk of one source path.
func BySource(path string) Filter {
	return Filter{"source": path}
}

// whereClause renders the filter as a SQL WHERE fragment with placeholder
// args. Keys are sorted so the generated SQL is deterministic.
func (f Filter) whereClause() (string, []any, error) {
	if len(f) == 0 {
		return "", nil, fmt.Errorf("empty filter refused: would match all chunks")
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		if !filterColumns[k] {
			return "", nil, fmt.Errorf("unknown filter column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, k+" = ?")
		args = append(args, f[k])
	}
	return strings.Join(conds, " AND "), args, nil
}
