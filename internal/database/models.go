package database

import "time"

// JobStatus is the lifecycle state of a Job (spec.md §3, §4.G).
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the persisted job-queue row (spec.md §3 "Job", §6 "Job record
// persistence"). Field names mirror the spec's field list directly.
type Job struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	FilePath      string     `gorm:"not null" json:"file_path"`
	FileName      string     `gorm:"not null" json:"file_name"`
	Status        JobStatus  `gorm:"type:text;not null;index:idx_jobs_dispatch,priority:2" json:"status"`
	RuleName      string     `json:"rule_name,omitempty"`
	Progress      float64    `gorm:"default:0" json:"progress"`
	CurrentStep   string     `json:"current_step,omitempty"`
	Error         string     `json:"error,omitempty"`
	Source        string     `json:"source,omitempty"`
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"default:3" json:"max_retries"`
	Priority      int        `gorm:"not null;default:0;index:idx_jobs_dispatch,priority:1" json:"priority"`
	LockedBy      string     `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;index:idx_jobs_dispatch,priority:3" json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
}

// MediaFileRole classifies the relationship a MediaFile has to its item
// (spec.md §3 "MediaFile").
type MediaFileRole string

const (
	MediaFileRoleSource    MediaFileRole = "source"
	MediaFileRoleUniversal MediaFileRole = "universal"
	MediaFileRoleExtra     MediaFileRole = "extra"
)

// MediaProfile is the internal classification of a MediaFile (GLOSSARY
// "Profile A/B/C").
type MediaProfile string

const (
	MediaProfileA MediaProfile = "A" // HDR/4K/high-bitrate source
	MediaProfileB MediaProfile = "B" // universal H.264/AAC MP4
	MediaProfileC MediaProfile = "C" // unclassified
)

// MediaFile identifies one concrete file on disk belonging to an item
// (spec.md §3 "MediaFile"). An item has at most one Universal file — that
// invariant is enforced by mediafiles.Store.Upsert, which replaces any prior
// Universal row for the item, not by a DB constraint, since "item" is an
// external collaborator concept this core doesn't own.
type MediaFile struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ItemID    string        `gorm:"not null;index" json:"item_id"`
	Role      MediaFileRole `gorm:"type:text;not null" json:"role"`
	Profile   MediaProfile  `gorm:"type:text;not null" json:"profile"`
	Path      string        `gorm:"not null;uniqueIndex" json:"path"`
	SizeBytes int64         `json:"size_bytes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Rule is the persisted rule-engine row (spec.md §3 "Rule"). Expr and
// Actions are stored as internally-tagged JSON per spec.md §9 and decoded
// by the rules package.
type Rule struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Enabled    bool      `gorm:"default:true" json:"enabled"`
	Priority   int       `gorm:"not null;default:0;index" json:"priority"`
	ExprJSON   string    `gorm:"type:text;not null" json:"expr"`
	ActionsJSON string   `gorm:"type:text;not null" json:"actions"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
