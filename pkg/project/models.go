// Package project stores the host project records that frameworks are
// attached to, including externally-sourced projects created by the asset
// sync, and mints their per-tenant external codes.
package project

import "time"

// Source marks the provenance of a project record.
type Source string

const (
	// SourceNative marks projects created by users of the host application.
	SourceNative Source = "native"
	// SourceJiraAssets marks projects created by the asset synchronization.
	SourceJiraAssets Source = "jira_assets"
)

// Project is a host project record.
type Project struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant         string    `gorm:"column:tenant;index:idx_project_tenant;uniqueIndex:idx_project_tenant_code,priority:1;not null"`
	Code           string    `gorm:"column:code;uniqueIndex:idx_project_tenant_code,priority:2;not null"`
	Title          string    `gorm:"column:title;not null"`
	Goal           string    `gorm:"column:goal"`
	Organizational bool      `gorm:"column:is_organizational;not null"`
	Source         Source    `gorm:"column:source;not null;default:native"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Project) TableName() string { return "projects" }

// CodeSequence is the monotonic per-tenant counter backing project codes.
// Values are never reused, even after a project is deleted.
type CodeSequence struct {
	Tenant    string `gorm:"primaryKey;column:tenant"`
	NextValue int64  `gorm:"column:next_value;not null;default:1"`
}

// TableName returns the GORM table name.
func (CodeSequence) TableName() string { return "project_code_sequences" }
