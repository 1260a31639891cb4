// Package repository provides data access for the paper tracker.
//
// # Overview
//
// PaperRepository is the only persistence contract. Papers are keyed by the
// pair (source, paper_id); the same id may exist under two sources.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// Methods return domain errors for expected conditions:
//
//   - domain.ErrNotFound: the paper does not exist
//   - domain.ErrInvalidInput: invalid parameters provided
//
// Database failures are wrapped with fmt.Errorf and %w.
//
// # Transactions
//
// BulkUpsert opens its own transaction when the repository was built on a
// pool. Built on a pgx.Tx it runs in a savepoint of the caller's transaction:
//
//	tx, err := db.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	err = database.RunInTx(ctx, tx, logger, func(tx pgx.Tx) error {
//	    _, err := repository.NewPgPaperRepository(tx).BulkUpsert(ctx, papers)
//	    return err
//	})
package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/aidd/paper-tracker/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// txBeginner is implemented by handles that can open a transaction
// (*pgxpool.Pool, *database.DB). On a pgx.Tx, Begin opens a savepoint.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// psql builds PostgreSQL statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
