package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Explain runs EXPLAIN (ANALYZE, VERBOSE, BUFFERS, FORMAT JSON) for the
// query and builds the resulting plan. The statement runs inside a
// transaction that is always rolled back, so ANALYZE of DML is safe.
// This is the only place pglens touches a database; the analysis core
// never does.
func Explain(dbConn string, sql string) (*Tree, error) {
	return ExplainContext(context.Background(), dbConn, sql, 0)
}

// ExplainContext is Explain with caller-controlled cancellation and an
// optional connect timeout (0 means no limit).
func ExplainContext(ctx context.Context, dbConn string, sql string, connectTimeout time.Duration) (*Tree, error) {
	connectCtx := ctx
	if connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	conn, err := pgx.Connect(connectCtx, dbConn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var jsonStr string
	if err := tx.QueryRow(ctx, "EXPLAIN (ANALYZE, VERBOSE, BUFFERS, FORMAT JSON) "+sql).Scan(&jsonStr); err != nil {
		return nil, fmt.Errorf("executing EXPLAIN: %w", err)
	}

	tree, err := Build([]byte(jsonStr))
	if err != nil {
		return nil, err
	}
	if tree.QueryText == "" {
		tree.QueryText = sql
	}
	return tree, nil
}
