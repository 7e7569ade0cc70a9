//go:build sqlite_fts5

package treedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
			label,
			content = 'nodes',
			content_rowid = 'id',
			tokenize = 'unicode61 remove_diacritics 2'
		);

		CREATE TRIGGER IF NOT EXISTS nodes_fts_ai AFTER INSERT ON nodes BEGIN
			INSERT INTO nodes_fts (rowid, label) VALUES (new.id, new.label);
		END;

		CREATE TRIGGER IF NOT EXISTS nodes_fts_ad AFTER DELETE ON nodes BEGIN
			INSERT INTO nodes_fts (nodes_fts, rowid, label) VALUES ('delete', old.id, old.label);
		END;

		CREATE TRIGGER IF NOT EXISTS nodes_fts_au AFTER UPDATE OF label ON nodes BEGIN
			INSERT INTO nodes_fts (nodes_fts, rowid, label) VALUES ('delete', old.id, old.label);
			INSERT INTO nodes_fts (rowid, label) VALUES (new.id, new.label);
		END;
	`)
	return err
}

// ftsQuery turns free text into a prefix query over quoted terms.
func ftsQuery(key string) string {
	terms := strings.Fields(key)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// matchIDs performs an FTS5 label search ordered by rank.
func (db *DB) matchIDs(ctx context.Context, key string, limit int) ([]int64, error) {
	q := ftsQuery(key)
	if q == "" {
		return nil, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT rowid FROM nodes_fts
		WHERE nodes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, q, limit)
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
