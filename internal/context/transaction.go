package context

import (
	"context"

	"gorm.io/gorm"
)

type contextKey string

const TRANSACTION_KEY contextKey = "transaction"

// GetTransaction returns the transaction carried by ctx, if any.
func GetTransaction(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TRANSACTION_KEY).(*gorm.DB)
	return tx, ok && tx != nil
}

func WithTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TRANSACTION_KEY, tx)
}

// DB prefers the transaction on ctx and falls back to db bound to ctx.
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := GetTransaction(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}
