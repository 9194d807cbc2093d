package services

import (
	"context"
	"fmt"

	contextutil "petintake/internal/context"
	"petintake/internal/database"

	logger "github.com/Bparsons0904/goLogger"
)

// TransactionService runs repository calls inside one database transaction. The transaction is
// carried on the context so repositories pick it up through getDB.
type TransactionService struct {
	db  database.DB
	log logger.Logger
}

func NewTransactionService(db database.DB) *TransactionService {
	return &TransactionService{
		db:  db,
		log: logger.New("TransactionService"),
	}
}

// Execute commits when fn returns nil and rolls back otherwise. A panic inside fn is rolled
// back and returned as an error.
func (ts *TransactionService) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return ts.execute(ctx, false, fn)
}

// ReadOnly is Execute with a read-only transaction.
func (ts *TransactionService) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return ts.execute(ctx, true, fn)
}

func (ts *TransactionService) execute(
	ctx context.Context,
	readOnly bool,
	fn func(ctx context.Context) error,
) (err error) {
	log := ts.log.TraceFromContext(ctx).Function("Execute")

	tx := ts.db.SQLWithContext(ctx).Begin()
	if tx.Error != nil {
		return log.Err("failed to begin transaction", tx.Error)
	}

	if readOnly {
		if err := tx.Exec("SET TRANSACTION READ ONLY").Error; err != nil {
			tx.Rollback()
			return log.Err("failed to mark transaction read only", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic during transaction: %v", r)
			log.Er("panic during transaction, rolling back", panicErr)

			if rollbackErr := tx.Rollback().Error; rollbackErr != nil {
				panic(fmt.Sprintf("transaction rollback failed: %v (original panic: %v)", rollbackErr, r))
			}
			err = panicErr
		}
	}()

	if err = fn(contextutil.WithTransaction(ctx, tx)); err != nil {
		if rollbackErr := tx.Rollback().Error; rollbackErr != nil {
			log.Er("failed to rollback after function error", rollbackErr, "originalError", err)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return log.Err("failed to commit transaction", err)
	}

	return nil
}
