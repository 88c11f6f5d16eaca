package runstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobRepository struct{ db *gorm.DB }

func NewJobRepository(db *gorm.DB) *JobRepository { return &JobRepository{db: db} }

func (r *JobRepository) Create(ctx context.Context, j *Job) error {
	rec := jobToRecord(j)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		j.ID = rec.ID
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *JobRepository) Get(ctx context.Context, id string) (*Job, error) {
	var rec JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return jobToModel(&rec), nil
}

func (r *JobRepository) ListByBuild(ctx context.Context, buildID string) ([]*Job, error) {
	var recs []JobRecord
	if err := r.db.WithContext(ctx).Where("build_id = ?", buildID).
		Order("number ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(recs))
	for i := range recs {
		out = append(out, jobToModel(&recs[i]))
	}
	return out, nil
}

func (r *JobRepository) Update(ctx context.Context, j *Job) error {
	rec := jobToRecord(j)
	return r.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", rec.ID).Updates(rec).Error
}

// AnyDeployed reports whether any job of the build has deployed, which is
// what "at most one deploy per build" audits against.
func (r *JobRepository) AnyDeployed(ctx context.Context, buildID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&JobRecord{}).
		Where("build_id = ? AND deployed = ?", buildID, true).Count(&count).Error
	return count > 0, err
}
