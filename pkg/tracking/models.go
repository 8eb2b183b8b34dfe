// Package tracking manages the association between frameworks and projects:
// the link records, the per-node implementation records fanned out on
// attach, risk links, and the progress roll-up.
package tracking

import (
	"time"

	"github.com/opencomply/comply-server/pkg/dbtypes"
)

// Status is the review state of an implementation record.
type Status string

const (
	StatusNotStarted       Status = "Not started"
	StatusInProgress       Status = "In Progress"
	StatusAwaitingReview   Status = "Awaiting Review"
	StatusAwaitingApproval Status = "Awaiting Approval"
	StatusImplemented      Status = "Implemented"
	StatusNeedsRework      Status = "Needs Rework"
	StatusDraft            Status = "Draft"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusAwaitingReview,
		StatusAwaitingApproval, StatusImplemented, StatusNeedsRework, StatusDraft:
		return true
	}
	return false
}

// ProjectFrameworkLink joins a framework to a project. The unique index on
// (framework_id, project_id) is the only guard against a concurrent double
// attach; the fan-out shares its transaction, so the race loser rolls back.
type ProjectFrameworkLink struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant      string    `gorm:"column:tenant;index;not null"`
	FrameworkID string    `gorm:"column:framework_id;uniqueIndex:idx_link_fw_project,priority:1;not null"`
	ProjectID   string    `gorm:"column:project_id;uniqueIndex:idx_link_fw_project,priority:2;index;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ProjectFrameworkLink) TableName() string { return "project_framework_links" }

// ImplementationRecord tracks progress on one structure node for one link.
// Level2NodeID is always set; Level3NodeID is set only for records created
// for Level3 nodes under three-level hierarchies.
type ImplementationRecord struct {
	ID                    string                  `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant                string                  `gorm:"column:tenant;index;not null"`
	LinkID                string                  `gorm:"column:link_id;index;not null"`
	Level2NodeID          string                  `gorm:"column:level2_node_id;index;not null"`
	Level3NodeID          *string                 `gorm:"column:level3_node_id;index"`
	Status                Status                  `gorm:"column:status;not null;default:Not started"`
	Owner                 string                  `gorm:"column:owner"`
	Reviewer              string                  `gorm:"column:reviewer"`
	Approver              string                  `gorm:"column:approver"`
	DueDate               *time.Time              `gorm:"column:due_date"`
	ImplementationDetails string                  `gorm:"column:implementation_details"`
	EvidenceLinks         dbtypes.JSONStringSlice `gorm:"column:evidence_links;type:text"`
	FeedbackLinks         dbtypes.JSONStringSlice `gorm:"column:feedback_links;type:text"`
	AuditorFeedback       string                  `gorm:"column:auditor_feedback"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ImplementationRecord) TableName() string { return "implementation_records" }

// IsLevel3 reports whether the record tracks a Level3 node.
func (r *ImplementationRecord) IsLevel3() bool { return r.Level3NodeID != nil }

// RiskLink associates an implementation record with an external risk entity.
type RiskLink struct {
	Tenant           string    `gorm:"column:tenant;index;not null"`
	ImplementationID string    `gorm:"primaryKey;column:implementation_id"`
	RiskID           string    `gorm:"primaryKey;column:risk_id"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (RiskLink) TableName() string { return "implementation_risk_links" }
