package treedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lazytree/internal/apperr"
)

// Row represents a row in the nodes table together with its child count.
type Row struct {
	ID         int64
	Label      string
	ParentID   int64 // 0 for a root
	ChildCount int
	UpdatedAt  time.Time

	// Children is only populated by Filter.
	Children []Row
}

// Branch is one node of an outline imported with Replace.
type Branch struct {
	Label    string
	Children []Branch
}

const selectRowSQL = `
	SELECT n.id,
	       n.label,
	       COALESCE(n.parent_id, 0),
	       (SELECT count(*) FROM nodes c WHERE c.parent_id = n.id),
	       n.updated_at
	FROM nodes n`

const subtreeSQL = `
	WITH RECURSIVE subtree(id) AS (
		SELECT ?
		UNION ALL
		SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id
	)`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func parentArg(parentID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: parentID, Valid: parentID != 0}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	out := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Label, &r.ParentID, &r.ChildCount, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func getRow(ctx context.Context, q queryer, id int64) (Row, error) {
	var r Row
	err := q.QueryRowContext(ctx, selectRowSQL+` WHERE n.id = ?`, id).
		Scan(&r.ID, &r.Label, &r.ParentID, &r.ChildCount, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("treedb: node %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Row{}, fmt.Errorf("treedb: get node: %w", err)
	}
	return r, nil
}

func nextPosition(ctx context.Context, q queryer, parentID int64) (int, error) {
	var pos int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM nodes WHERE parent_id IS ?`,
		parentArg(parentID)).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("treedb: next position: %w", err)
	}
	return pos, nil
}

// Get returns a single node.
func (db *DB) Get(ctx context.Context, id int64) (Row, error) {
	return getRow(ctx, db.conn, id)
}

// Roots returns the top-level nodes in sibling order.
func (db *DB) Roots(ctx context.Context) ([]Row, error) {
	rows, err := db.conn.QueryContext(ctx, selectRowSQL+`
		WHERE n.parent_id IS NULL
		ORDER BY n.position, n.id`)
	if err != nil {
		return nil, fmt.Errorf("treedb: roots: %w", err)
	}
	return scanRows(rows)
}

// Children returns the direct children of parentID in sibling order. A zero
// parent returns the roots.
func (db *DB) Children(ctx context.Context, parentID int64) ([]Row, error) {
	if parentID == 0 {
		return db.Roots(ctx)
	}
	rows, err := db.conn.QueryContext(ctx, selectRowSQL+`
		WHERE n.parent_id = ?
		ORDER BY n.position, n.id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("treedb: children: %w", err)
	}
	return scanRows(rows)
}

// Filter returns the nodes whose label matches key, each with its direct
// children embedded.
func (db *DB) Filter(ctx context.Context, key string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := db.matchIDs(ctx, key, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		r, err := getRow(ctx, db.conn, id)
		if err != nil {
			return nil, err
		}
		if r.ChildCount > 0 {
			if r.Children, err = db.Children(ctx, id); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Create appends a node under parentID (0 for a root).
func (db *DB) Create(ctx context.Context, parentID int64, label string) (Row, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, fmt.Errorf("treedb: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if parentID != 0 {
		if _, err := getRow(ctx, tx, parentID); err != nil {
			return Row{}, err
		}
	}
	pos, err := nextPosition(ctx, tx, parentID)
	if err != nil {
		return Row{}, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (label, parent_id, position, updated_at) VALUES (?, ?, ?, ?)`,
		label, parentArg(parentID), pos, time.Now().UTC())
	if err != nil {
		return Row{}, fmt.Errorf("treedb: insert node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Row{}, fmt.Errorf("treedb: insert node: %w", err)
	}
	row, err := getRow(ctx, tx, id)
	if err != nil {
		return Row{}, err
	}
	return row, tx.Commit()
}

// Update relabels a node and moves it under parentID (0 for a root). Moving a
// node under itself or one of its descendants fails with apperr.ErrConflict.
func (db *DB) Update(ctx context.Context, id int64, label string, parentID int64) (Row, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, fmt.Errorf("treedb: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getRow(ctx, tx, id)
	if err != nil {
		return Row{}, err
	}
	if parentID != 0 {
		if _, err := getRow(ctx, tx, parentID); err != nil {
			return Row{}, err
		}
		var cycle bool
		err := tx.QueryRowContext(ctx,
			subtreeSQL+` SELECT EXISTS(SELECT 1 FROM subtree WHERE id = ?)`, id, parentID).Scan(&cycle)
		if err != nil {
			return Row{}, fmt.Errorf("treedb: cycle check: %w", err)
		}
		if cycle {
			return Row{}, fmt.Errorf("treedb: move %d under %d: %w", id, parentID, apperr.ErrConflict)
		}
	}

	now := time.Now().UTC()
	if current.ParentID == parentID {
		_, err = tx.ExecContext(ctx, `UPDATE nodes SET label = ?, updated_at = ? WHERE id = ?`, label, now, id)
	} else {
		var pos int
		if pos, err = nextPosition(ctx, tx, parentID); err != nil {
			return Row{}, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET label = ?, parent_id = ?, position = ?, updated_at = ? WHERE id = ?`,
			label, parentArg(parentID), pos, now, id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("treedb: update node: %w", err)
	}

	row, err := getRow(ctx, tx, id)
	if err != nil {
		return Row{}, err
	}
	return row, tx.Commit()
}

// Delete removes a node; its descendants are removed by the cascade.
func (db *DB) Delete(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("treedb: delete node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("treedb: delete node: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("treedb: node %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ValidParents returns every node id could be moved under: all nodes outside
// its own subtree, ordered by label.
func (db *DB) ValidParents(ctx context.Context, id int64) ([]Row, error) {
	if _, err := getRow(ctx, db.conn, id); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, subtreeSQL+selectRowSQL+`
		WHERE n.id NOT IN (SELECT id FROM subtree)
		ORDER BY n.label, n.id`, id)
	if err != nil {
		return nil, fmt.Errorf("treedb: valid parents: %w", err)
	}
	return scanRows(rows)
}

// Subtree returns the strict descendants of id, deepest first.
func (db *DB) Subtree(ctx context.Context, id int64) ([]Row, error) {
	if _, err := getRow(ctx, db.conn, id); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
	WITH RECURSIVE subtree(id, depth) AS (
		SELECT ?, 0
		UNION ALL
		SELECT n.id, s.depth + 1 FROM nodes n JOIN subtree s ON n.parent_id = s.id
	)`+selectRowSQL+`
		JOIN subtree s ON s.id = n.id
		WHERE s.depth > 0
		ORDER BY s.depth DESC, n.id`, id)
	if err != nil {
		return nil, fmt.Errorf("treedb: subtree: %w", err)
	}
	return scanRows(rows)
}

// Count returns the number of stored nodes.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("treedb: count: %w", err)
	}
	return n, nil
}

// Replace deletes every node and imports the outline within one transaction.
// It returns the number of imported nodes.
func (db *DB) Replace(ctx context.Context, outline []Branch) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("treedb: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return 0, fmt.Errorf("treedb: clear nodes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (label, parent_id, position, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("treedb: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	var insert func(branches []Branch, parentID int64) error
	insert = func(branches []Branch, parentID int64) error {
		for pos, b := range branches {
			res, err := stmt.ExecContext(ctx, b.Label, parentArg(parentID), pos, now)
			if err != nil {
				return fmt.Errorf("treedb: insert %q: %w", b.Label, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			count++
			if err := insert(b.Children, id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(outline, 0); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}
