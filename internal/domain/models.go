// Package domain defines the persistence models for research records, the
// usage ledger and chat-on-report messages, plus the report shapes the
// research pipeline produces. Persistent types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Mode selects the analysis depth.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeFast || m == ModeDeep }

// Status is the lifecycle state of a Research record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic: pending → processing → completed|failed. Pending may also fail
// directly (e.g. a rejected run), but nothing leaves a terminal state.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Research is a persisted analysis run owned by an identity. Anonymous runs
// carry an empty UserID and are never listed.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owner; empty for anonymous runs (indexed with Status for the
//     concurrent-run guard).
//   - Idea / Category / Mode: the submission that seeded the run.
//   - Status: monotonic lifecycle, see Status.CanTransition.
//   - Result: the canonical AnalysisReport, nil until completion.
//   - Notes: free-text user notes.
//   - Error: user-safe failure reason when Status is failed.
type Research struct {
	ID        string          `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string          `json:"user_id"    gorm:"type:varchar(64);not null;default:'';index:idx_research_user_status,priority:1"`
	Idea      string          `json:"idea"       gorm:"type:text;not null"`
	Category  string          `json:"category"   gorm:"type:varchar(64);not null;default:''"`
	Mode      Mode            `json:"mode"       gorm:"type:varchar(8);not null;check:mode IN ('fast','deep')"`
	Status    Status          `json:"status"     gorm:"type:varchar(16);not null;default:'pending';index:idx_research_user_status,priority:2"`
	Result    *AnalysisReport `json:"result,omitempty" gorm:"type:text;serializer:json"`
	Notes     string          `json:"notes"      gorm:"type:text;not null;default:''"`
	Error     string          `json:"error,omitempty" gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Research.
func (Research) TableName() string { return "research" }

// UsageCounter is the per-identity daily ledger row. Identity is either
// "user:<id>" or "anon:<sha256>"; raw client addresses are never stored.
// Counts are only meaningful while Day equals the current UTC date.
type UsageCounter struct {
	Identity  string    `json:"identity"  gorm:"type:varchar(80);primaryKey"`
	Day       string    `json:"day"       gorm:"type:char(10);not null"`
	FastUsed  int       `json:"fast_used" gorm:"not null;default:0"`
	DeepUsed  int       `json:"deep_used" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for UsageCounter.
func (UsageCounter) TableName() string { return "usage_counters" }

// ChatMessage is one turn of a chat-on-report conversation.
type ChatMessage struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ResearchID string    `json:"research_id" gorm:"type:char(36);not null;index:idx_research_msgs,priority:1"`
	UserID     string    `json:"-"           gorm:"type:varchar(64);not null"`
	Role       string    `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_research_msgs,priority:2"`

	// Research is the parent record. Messages are cascade-deleted with it.
	Research Research `json:"-" gorm:"foreignKey:ResearchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
