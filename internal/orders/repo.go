package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/adesolafarms/farmstore-backend/pkg/pagination"
)

// Repository defines persistence operations for orders. Status and flag
// writes are conditional updates so concurrent reconcilers serialize on the
// database rather than in memory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	UpdateWhereStatus(ctx context.Context, id uuid.UUID, current enums.OrderStatus, updates map[string]any) (int64, error)
	ClaimPaid(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
	ClaimInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error)
	ResetInventoryDeducted(ctx context.Context, id uuid.UUID) error
	ClearInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error)
	SetFinanceRecordID(ctx context.Context, id uuid.UUID, financeRecordID string) (int64, error)
	AppendAdminNote(ctx context.Context, id uuid.UUID, note string) error
}

// ListFilters narrows the admin order listing.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	CustomerID    *uuid.UUID
}

// OrderList is one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.CustomerID != nil {
		query = query.Where("customer_id = ?", *filters.CustomerID)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &OrderList{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	list.Orders = rows
	return list, nil
}

// UpdateWhereStatus applies updates only while the order still holds the
// expected status. Zero rows means a concurrent transition won.
func (r *repository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, current enums.OrderStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, current).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ClaimPaid marks the order paid only if it has not been paid yet. The
// condition is the serialization point between the webhook and verify paths.
func (r *repository) ClaimPaid(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", id, enums.PaymentStatusPaid).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ClaimInventoryDeducted flips the deduction flag only if currently unset.
func (r *repository) ClaimInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND inventory_deducted = ?", id, false).
		Update("inventory_deducted", true)
	return res.RowsAffected, res.Error
}

// ResetInventoryDeducted lowers the flag after a failed remote deduction so a
// later retry can claim it again and cancellation does not restore stock that
// was never confirmed deducted.
func (r *repository) ResetInventoryDeducted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("inventory_deducted", false).Error
}

// ClearInventoryDeducted lowers the flag during restore, claiming it so two
// concurrent restores cannot both put stock back.
func (r *repository) ClearInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND inventory_deducted = ?", id, true).
		Update("inventory_deducted", false)
	return res.RowsAffected, res.Error
}

// SetFinanceRecordID records the finance ledger id at most once.
func (r *repository) SetFinanceRecordID(ctx context.Context, id uuid.UUID, financeRecordID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND finance_record_id IS NULL", id).
		Update("finance_record_id", financeRecordID)
	return res.RowsAffected, res.Error
}

// AppendAdminNote adds an operator-visible line to the order's admin notes.
func (r *repository) AppendAdminNote(ctx context.Context, id uuid.UUID, note string) error {
	stamped := time.Now().UTC().Format(time.RFC3339) + " " + note
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("admin_notes", gorm.Expr(
			"CASE WHEN admin_notes = '' OR admin_notes IS NULL THEN ? ELSE admin_notes || ? END",
			stamped, "\n"+stamped,
		)).Error
}
