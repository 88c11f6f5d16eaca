package runstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BuildRepository struct{ db *gorm.DB }

func NewBuildRepository(db *gorm.DB) *BuildRepository { return &BuildRepository{db: db} }

func (r *BuildRepository) Create(ctx context.Context, b *Build) error {
	rec := buildToRecord(b)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		b.ID = rec.ID
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *BuildRepository) Get(ctx context.Context, id string) (*Build, error) {
	var rec BuildRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBuildNotFound
		}
		return nil, err
	}
	return buildToModel(&rec), nil
}

// List returns builds newest first; history wants the latest on top.
func (r *BuildRepository) List(ctx context.Context, limit int) ([]*Build, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []BuildRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Build, 0, len(recs))
	for i := range recs {
		out = append(out, buildToModel(&recs[i]))
	}
	return out, nil
}

func (r *BuildRepository) Update(ctx context.Context, b *Build) error {
	rec := buildToRecord(b)
	return r.db.WithContext(ctx).Model(&BuildRecord{}).Where("id = ?", rec.ID).Updates(rec).Error
}

func (r *BuildRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&BuildRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBuildNotFound
	}
	return nil
}
