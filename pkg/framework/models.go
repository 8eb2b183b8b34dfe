// Package framework stores compliance framework definitions: the catalog
// row plus two or three tiers of ordered structure nodes, imported as one
// transactional tree.
package framework

import (
	"time"

	"github.com/opencomply/comply-server/pkg/dbtypes"
)

// HierarchyType is the number of nesting tiers in a framework's structure.
type HierarchyType string

const (
	HierarchyTwoLevel   HierarchyType = "two_level"
	HierarchyThreeLevel HierarchyType = "three_level"
)

// Valid reports whether h is a member of the closed hierarchy set.
func (h HierarchyType) Valid() bool {
	return h == HierarchyTwoLevel || h == HierarchyThreeLevel
}

// Framework is a catalog entry owned by a tenant. Once attached to a
// project that still exists it is immutable (deletion is blocked).
type Framework struct {
	ID             string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant         string        `gorm:"column:tenant;index:idx_framework_tenant;uniqueIndex:idx_framework_tenant_name,priority:1;not null"`
	Name           string        `gorm:"column:name;not null"`
	NameLower      string        `gorm:"column:name_lower;uniqueIndex:idx_framework_tenant_name,priority:2;not null"`
	Description    string        `gorm:"column:description;not null"`
	Version        string        `gorm:"column:version"`
	Organizational bool          `gorm:"column:is_organizational;not null"`
	HierarchyType  HierarchyType `gorm:"column:hierarchy_type;not null"`
	Level1Name     string        `gorm:"column:level1_name;not null"`
	Level2Name     string        `gorm:"column:level2_name;not null"`
	Level3Name     string        `gorm:"column:level3_name"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Framework) TableName() string { return "frameworks" }

// Level1Node is a top-tier "category" node owning ordered Level2 children.
type Level1Node struct {
	ID          string             `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant      string             `gorm:"column:tenant;index;not null"`
	FrameworkID string             `gorm:"column:framework_id;index;not null"`
	Title       string             `gorm:"column:title;not null"`
	Description string             `gorm:"column:description"`
	OrderNo     int                `gorm:"column:order_no;not null"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Level1Node) TableName() string { return "framework_level1_nodes" }

// Level2Node is a mid-tier "control" node. Under three-level hierarchies it
// owns ordered Level3 children.
type Level2Node struct {
	ID               string                  `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant           string                  `gorm:"column:tenant;index;not null"`
	FrameworkID      string                  `gorm:"column:framework_id;index;not null"`
	Level1ID         string                  `gorm:"column:level1_id;index;not null"`
	Title            string                  `gorm:"column:title;not null"`
	Description      string                  `gorm:"column:description"`
	OrderNo          int                     `gorm:"column:order_no;not null"`
	Summary          string                  `gorm:"column:summary"`
	Questions        dbtypes.JSONStringSlice `gorm:"column:questions;type:text"`
	EvidenceExamples dbtypes.JSONStringSlice `gorm:"column:evidence_examples;type:text"`
	Metadata         dbtypes.JSONAny         `gorm:"column:metadata;type:text"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Level2Node) TableName() string { return "framework_level2_nodes" }

// Level3Node is a bottom-tier "subcontrol" node, present only under
// three-level hierarchies.
type Level3Node struct {
	ID               string                  `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant           string                  `gorm:"column:tenant;index;not null"`
	FrameworkID      string                  `gorm:"column:framework_id;index;not null"`
	Level2ID         string                  `gorm:"column:level2_id;index;not null"`
	Title            string                  `gorm:"column:title;not null"`
	Description      string                  `gorm:"column:description"`
	OrderNo          int                     `gorm:"column:order_no;not null"`
	Summary          string                  `gorm:"column:summary"`
	Questions        dbtypes.JSONStringSlice `gorm:"column:questions;type:text"`
	EvidenceExamples dbtypes.JSONStringSlice `gorm:"column:evidence_examples;type:text"`
	Metadata         dbtypes.JSONAny         `gorm:"column:metadata;type:text"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Level3Node) TableName() string { return "framework_level3_nodes" }
