package repository

import (
	"context"

	"gorm.io/gorm"
)

// TxManager runs a function inside a database transaction. Services depend
// on it instead of *gorm.DB directly so tests can substitute an in-memory
// runner.
type TxManager interface {
	Do(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type txManagerImpl struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) TxManager {
	return &txManagerImpl{db: db}
}

func (m *txManagerImpl) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}
