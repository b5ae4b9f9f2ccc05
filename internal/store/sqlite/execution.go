package sqlite

import (
	"context"
	"errors"
	"time"

	"teaka/internal/store"
	"teaka/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// executionRepo implements the ExecutionRepository interface.
type executionRepo struct {
	db *gorm.DB
}

func NewExecutionRepo(db *gorm.DB) *executionRepo {
	return &executionRepo{db: db}
}

// Save inserts or updates by execution_id.
func (r *executionRepo) Save(ctx context.Context, e *model.ExecutionModel) error {
	if e == nil {
		return errors.New("execution cannot be nil")
	}
	if e.ExecutionID == "" {
		return errors.New("execution id is required")
	}
	now := time.Now().UnixMilli()
	if e.CreatedAtUnix == 0 {
		e.CreatedAtUnix = now
	}
	e.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "execution_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"venue", "order_id", "units", "notional", "price", "stop_loss", "take_profit",
			"status", "error_code", "error_message", "raw_json", "updated_at",
		}),
	}).Create(e).Error
}

func (r *executionRepo) FindByID(ctx context.Context, executionID string) (*model.ExecutionModel, error) {
	var e model.ExecutionModel
	err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hydrate(&e)
	return &e, nil
}

func (r *executionRepo) ListRecent(ctx context.Context, limit int) ([]model.ExecutionModel, error) {
	var out []model.ExecutionModel
	if limit <= 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	for i := range out {
		hydrate(&out[i])
	}
	return out, nil
}

func (r *executionRepo) UpdateStatus(ctx context.Context, executionID string, status model.ExecutionStatus) error {
	res := r.db.WithContext(ctx).Model(&model.ExecutionModel{}).
		Where("execution_id = ?", executionID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UnixMilli()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func hydrate(e *model.ExecutionModel) {
	e.CreatedAt = time.UnixMilli(e.CreatedAtUnix)
	e.UpdatedAt = time.UnixMilli(e.UpdatedAtUnix)
}
