package sqlutil

import (
	"database/sql"
	"strconv"
	"strings"
)

// InClauseArgs returns a comma-separated list of "?" placeholders and the
// corresponding args slice.
//
// If items is empty, it returns "NULL" and no args, so `IN (NULL)` matches nothing.
func InClauseArgs[T any](items []T) (placeholders string, args []any) {
	if len(items) == 0 {
		return "NULL", nil
	}
	ph := make([]string, len(items))
	args = make([]any, len(items))
	for i, item := range items {
		ph[i] = "?"
		args[i] = item
	}
	return strings.Join(ph, ", "), args
}

// ScanRows scans all rows into a slice using the provided scanner.
func ScanRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ScanInt64s collects a single integer column.
func ScanInt64s(rows *sql.Rows) ([]int64, error) {
	return ScanRows(rows, func(r *sql.Rows) (int64, error) {
		var v int64
		err := r.Scan(&v)
		return v, err
	})
}

// Rebind rewrites "?" placeholders as "$1", "$2", ... for postgres.
// Question marks inside single-quoted literals are left alone.
func Rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
