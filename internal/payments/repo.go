package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
)

// Repository defines persistence operations for payment transactions. Status
// writes are conditional on Pending so a transaction reaches exactly one
// terminal state no matter how many reconcilers race.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ClaimSuccess(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ClaimSuccess moves a transaction Pending to Success. Zero rows means a
// concurrent reconciler already settled it.
func (r *repository) ClaimSuccess(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	updates["status"] = enums.TransactionStatusSuccess
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// MarkFailed moves a transaction Pending to Failed. Zero rows means a
// concurrent reconciler already settled it.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(map[string]any{
			"status":         enums.TransactionStatusFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected, res.Error
}
