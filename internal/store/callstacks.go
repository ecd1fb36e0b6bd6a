package store

import (
	"context"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
)

// CallStackRow is one persisted call trace step
type CallStackRow struct {
	StepNumber int
	StepType   string
	Expression string
	SourceID   int64
}

// SaveCallStack replaces the trace stored under key. Old and new rows are
// swapped in one transaction so readers never see a mix of both.
func (s *tagDB) SaveCallStack(ctx context.Context, key string, rows []CallStackRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("save_call_stack", s.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM call_stacks WHERE trace_key = ?", key); err != nil {
		return tagerrors.NewStoreError("save_call_stack", s.path, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO call_stacks (trace_key, step_number, step_type, expression, source_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return tagerrors.NewStoreError("save_call_stack", s.path, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, key, r.StepNumber, r.StepType, r.Expression, nullableID(r.SourceID)); err != nil {
			return tagerrors.NewStoreError("save_call_stack", s.path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return tagerrors.NewStoreError("save_call_stack", s.path, err)
	}
	return nil
}

// LoadCallStack returns the rows stored under key in step order
func (s *tagDB) LoadCallStack(ctx context.Context, key string) ([]CallStackRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step_number, step_type, expression, COALESCE(source_id, 0)
		FROM call_stacks WHERE trace_key = ? ORDER BY step_number`, key)
	if err != nil {
		return nil, tagerrors.NewStoreError("load_call_stack", s.path, err)
	}
	defer rows.Close()

	var out []CallStackRow
	for rows.Next() {
		var r CallStackRow
		if err := rows.Scan(&r.StepNumber, &r.StepType, &r.Expression, &r.SourceID); err != nil {
			return nil, tagerrors.NewStoreError("load_call_stack", s.path, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CallStackKeys lists the keys of every stored trace
func (s *tagDB) CallStackKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT trace_key FROM call_stacks ORDER BY trace_key")
	if err != nil {
		return nil, tagerrors.NewStoreError("load_call_stack", s.path, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
