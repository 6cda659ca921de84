package database

// Result is a fully read result set. The connection that produced it has
// already been handed back to the pool when the caller receives it.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ScanRows reads all rows from the cursor into a Result, where each row
// maps column name to the Go-native value. Text returned by the driver as
// []byte is converted to string.
//
// Rows is always non-nil (empty slice on zero rows).
// ScanRows always closes rows.
func ScanRows(rows Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns, Rows: make([]map[string]any, 0)}

	for rows.Next() {
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = dest[i]
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
