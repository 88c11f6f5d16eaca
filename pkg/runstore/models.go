package runstore

import (
	"errors"
	"time"
)

var (
	ErrBuildNotFound = errors.New("build not found")
	ErrJobNotFound   = errors.New("job not found")
)

// Build is one full run over the matrix.
type Build struct {
	ID         string
	Commit     string
	Branch     string
	Tag        string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Job is one cell of a build's matrix.
type Job struct {
	ID       string
	BuildID  string
	Number   int
	Python   string
	Env      string
	Status   string
	Deployed bool
	// Transcript is the tail of the job's command output, for post-mortems
	// without digging up the full log.
	Transcript string
	StartedAt  time.Time
	FinishedAt time.Time
}

// BuildRecord is the persistence model for Build.
// Table name: builds
type BuildRecord struct {
	ID         string `gorm:"primaryKey;type:text;not null"`
	Commit     string `gorm:"type:text"`
	Branch     string `gorm:"type:text"`
	Tag        string `gorm:"type:text"`
	Status     string `gorm:"type:text;not null"`
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (BuildRecord) TableName() string { return "builds" }

// JobRecord is the persistence model for Job.
// Table name: jobs
type JobRecord struct {
	ID         string `gorm:"primaryKey;type:text;not null"`
	BuildID    string `gorm:"type:text;not null;index"` // references Build
	Number     int    `gorm:"not null"`
	Python     string `gorm:"type:text"`
	Env        string `gorm:"type:text"`
	Status     string `gorm:"type:text;not null"`
	Deployed   bool   `gorm:"not null"`
	Transcript string `gorm:"type:text"`
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (JobRecord) TableName() string { return "jobs" }

func buildToRecord(b *Build) *BuildRecord {
	return &BuildRecord{
		ID: b.ID, Commit: b.Commit, Branch: b.Branch, Tag: b.Tag,
		Status: b.Status, StartedAt: b.StartedAt, FinishedAt: b.FinishedAt,
	}
}

func buildToModel(r *BuildRecord) *Build {
	return &Build{
		ID: r.ID, Commit: r.Commit, Branch: r.Branch, Tag: r.Tag,
		Status: r.Status, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
	}
}

func jobToRecord(j *Job) *JobRecord {
	return &JobRecord{
		ID: j.ID, BuildID: j.BuildID, Number: j.Number, Python: j.Python,
		Env: j.Env, Status: j.Status, Deployed: j.Deployed,
		Transcript: j.Transcript, StartedAt: j.StartedAt, FinishedAt: j.FinishedAt,
	}
}

func jobToModel(r *JobRecord) *Job {
	return &Job{
		ID: r.ID, BuildID: r.BuildID, Number: r.Number, Python: r.Python,
		Env: r.Env, Status: r.Status, Deployed: r.Deployed,
		Transcript: r.Transcript, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
	}
}
