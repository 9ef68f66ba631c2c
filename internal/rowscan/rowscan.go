// Package rowscan converts database/sql result sets into generic row maps
// for adapters that return untyped data.
package rowscan

import "database/sql"

// Maps drains rows into column-keyed maps and returns the column order
// alongside. Driver []byte values are copied to strings so rows stay valid
// after the result set is closed.
func Maps(rows *sql.Rows) ([]map[string]any, []string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	out := []map[string]any{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, cols, rows.Err()
}

// FirstColumn drains a single-column result set into a string slice,
// skipping NULLs.
func FirstColumn(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	return out, rows.Err()
}

// Column drains one column, selected by position, from a wide result set.
// NULLs and out-of-range positions are skipped.
func Column(rows *sql.Rows, idx int) ([]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	out := []string{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(vals) {
			continue
		}
		switch v := vals[idx].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		}
	}
	return out, rows.Err()
}
