//go:build !sqlite_fts5

package treedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; label search uses LIKE on the nodes table.
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// matchIDs performs a LIKE-based label search (fallback when FTS5 is not
// compiled in).
func (db *DB) matchIDs(ctx context.Context, key string, limit int) ([]int64, error) {
	like := "%" + likeEscaper.Replace(strings.TrimSpace(key)) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id FROM nodes
		WHERE label LIKE ? ESCAPE '\'
		ORDER BY id
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("treedb: filter: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
