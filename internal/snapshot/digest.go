// Package snapshot computes deterministic digests of table contents.
//
// A digest is a SHA-256 over the canonically serialized rows of a table,
// independent of physical row order. Digests taken before and after a repair
// run make atomicity checkable: a rolled-back run must leave every table
// digest unchanged, and a repeated run over clean data must change nothing.
package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"slices"
)

// Querier abstracts the query surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableDigest returns the hex SHA-256 digest of a table's rows.
//
// Rows are serialized canonically, sorted bytewise, and hashed, so the
// digest depends only on the row multiset, not on insertion or scan order.
// The table name must already be validated as an identifier by the caller;
// this package never sees user input at run time.
func TableDigest(ctx context.Context, q Querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, table))
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", table, err)
	}

	var serialized [][]byte
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("snapshot %s: %w", table, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		data, err := marshalRow(row)
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", table, err)
		}
		serialized = append(serialized, data)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", table, err)
	}

	slices.SortFunc(serialized, func(a, b []byte) int {
		return slices.Compare(a, b)
	})

	h := sha256.New()
	for _, data := range serialized {
		h.Write(data)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DatabaseDigest returns per-table digests for the given tables.
// Table iteration order does not affect the individual digests.
func DatabaseDigest(ctx context.Context, q Querier, tables []string) (map[string]string, error) {
	digests := make(map[string]string, len(tables))
	for _, table := range tables {
		d, err := TableDigest(ctx, q, table)
		if err != nil {
			return nil, err
		}
		digests[table] = d
	}
	return digests, nil
}
