package tracking

import (
	"context"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/framework"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// TierProgress is the roll-up for one structure tier.
type TierProgress struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	Assigned   int64 `json:"assigned"`
	Percentage int   `json:"percentage"`
}

// ProgressReport is the progress response for one framework link. Overall
// aliases Level3 whenever the hierarchy is three-level, else Level2 —
// three-level hierarchies report by their most granular tier.
type ProgressReport struct {
	Level2  TierProgress  `json:"level2"`
	Level3  *TierProgress `json:"level3,omitempty"`
	Overall TierProgress  `json:"overall"`
}

// Aggregator computes progress roll-ups. It is a pure read over the
// implementation record table: no side effects, safe to call concurrently.
type Aggregator struct {
	db         *gorm.DB
	frameworks *framework.Store
	links      *LinkStore
}

// NewAggregator creates a new Aggregator.
func NewAggregator(db *gorm.DB, frameworks *framework.Store, links *LinkStore) *Aggregator {
	return &Aggregator{db: db, frameworks: frameworks, links: links}
}

// Progress computes the roll-up for one framework/project link. Completed
// counts records with status Implemented; Assigned counts records with a
// non-empty owner; Percentage is round(completed/total*100), 0 when total
// is 0.
func (a *Aggregator) Progress(ctx context.Context, tenant tenancy.TenantID, frameworkID, projectID string) (*ProgressReport, error) {
	fw, err := a.frameworks.Get(ctx, tenant, frameworkID)
	if err != nil {
		return nil, err
	}
	link, err := a.links.GetLink(ctx, tenant, frameworkID, projectID)
	if err != nil {
		return nil, err
	}

	level2, err := a.tierProgress(ctx, tenant, link.ID, false)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{Level2: level2, Overall: level2}

	if fw.HierarchyType == framework.HierarchyThreeLevel {
		level3, err := a.tierProgress(ctx, tenant, link.ID, true)
		if err != nil {
			return nil, err
		}
		report.Level3 = &level3
		report.Overall = level3
	}

	return report, nil
}

// tierProgress aggregates one tier of a link's records. Level3 records are
// the ones carrying a level3_node_id, joined to the link through their
// parent Level2 record's link id.
func (a *Aggregator) tierProgress(ctx context.Context, tenant tenancy.TenantID, linkID string, level3 bool) (TierProgress, error) {
	// Each count builds its own query: gorm statements are not safely
	// reusable after a finisher.
	tierQuery := func() *gorm.DB {
		q := a.db.WithContext(ctx).Model(&ImplementationRecord{}).
			Where("tenant = ? AND link_id = ?", tenant.String(), linkID)
		if level3 {
			return q.Where("level3_node_id IS NOT NULL")
		}
		return q.Where("level3_node_id IS NULL")
	}

	var p TierProgress
	if err := tierQuery().Count(&p.Total).Error; err != nil {
		return TierProgress{}, fmt.Errorf("count records: %w", err)
	}
	if err := tierQuery().Where("status = ?", StatusImplemented).Count(&p.Completed).Error; err != nil {
		return TierProgress{}, fmt.Errorf("count completed records: %w", err)
	}
	if err := tierQuery().Where("owner <> ''").Count(&p.Assigned).Error; err != nil {
		return TierProgress{}, fmt.Errorf("count assigned records: %w", err)
	}

	if p.Total > 0 {
		p.Percentage = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}

	return p, nil
}
