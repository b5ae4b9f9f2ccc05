package sqlite

import (
	"context"
	"errors"
	"time"

	"teaka/internal/store"
	"teaka/internal/store/model"

	"gorm.io/gorm"
)

type decisionRepo struct {
	db *gorm.DB
}

func NewDecisionRepo(db *gorm.DB) *decisionRepo {
	return &decisionRepo{db: db}
}

func (r *decisionRepo) Insert(ctx context.Context, d *model.DecisionModel) error {
	if d == nil {
		return errors.New("decision cannot be nil")
	}
	if d.CreatedAtUnix == 0 {
		d.CreatedAtUnix = time.Now().UnixMilli()
	}
	return r.db.WithContext(ctx).Create(d).Error
}

// List returns decisions newest first.
func (r *decisionRepo) List(ctx context.Context, q store.DecisionQuery) ([]model.DecisionModel, error) {
	var out []model.DecisionModel
	tx := r.db.WithContext(ctx).Model(&model.DecisionModel{})
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", q.Symbol)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", q.Kind)
	}
	if q.Since > 0 {
		tx = tx.Where("timestamp >= ?", q.Since)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if err := tx.Order("timestamp DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CreatedAt = time.UnixMilli(out[i].CreatedAtUnix)
	}
	return out, nil
}

func (r *decisionRepo) CountByKind(ctx context.Context, since int64) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	tx := r.db.WithContext(ctx).Model(&model.DecisionModel{}).Select("kind, COUNT(*) AS total")
	if since > 0 {
		tx = tx.Where("timestamp >= ?", since)
	}
	if err := tx.Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Total
	}
	return out, nil
}
