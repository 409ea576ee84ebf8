package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/playtestlabs/playtest/internal/order/domain"
	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) FindBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Where("stripe_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateSession
	}
	return err
}

func (r *orderRepo) UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]any) (*domain.Order, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("stripe_session_id = ?", sessionID).
		Updates(updates)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return r.FindBySessionID(ctx, sessionID)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite, used by the test suite
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
