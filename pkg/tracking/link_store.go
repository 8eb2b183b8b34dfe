package tracking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/framework"
	"github.com/opencomply/comply-server/pkg/project"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// LinkStore manages project-framework links and the implementation record
// fan-out performed when a framework is attached.
type LinkStore struct {
	db         *gorm.DB
	frameworks *framework.Store
	projects   *project.Store
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(db *gorm.DB, frameworks *framework.Store, projects *project.Store) *LinkStore {
	return &LinkStore{db: db, frameworks: frameworks, projects: projects}
}

// AutoMigrate creates or updates the tracking tables.
func (s *LinkStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ProjectFrameworkLink{}); err != nil {
		return fmt.Errorf("auto-migrate project framework links: %w", err)
	}
	if err := s.db.AutoMigrate(&ImplementationRecord{}); err != nil {
		return fmt.Errorf("auto-migrate implementation records: %w", err)
	}
	if err := s.db.AutoMigrate(&RiskLink{}); err != nil {
		return fmt.Errorf("auto-migrate risk links: %w", err)
	}
	return nil
}

// AttachResult reports the fan-out counts of an attach.
type AttachResult struct {
	LinkID        string `json:"linkId"`
	Level2Created int    `json:"level2Created"`
	Level3Created int    `json:"level3Created"`
}

// Attach links a framework to a project and creates one implementation
// record per Level2 node and, for three-level hierarchies, one per Level3
// node — a deterministic 1:1 fan-out inside a single transaction. It fails
// if the framework or project is missing, if the pair already exists, or if
// the organizational flags mismatch.
func (s *LinkStore) Attach(ctx context.Context, tenant tenancy.TenantID, frameworkID, projectID string) (*AttachResult, error) {
	fw, err := s.frameworks.Get(ctx, tenant, frameworkID)
	if err != nil {
		return nil, err
	}
	proj, err := s.projects.Get(ctx, tenant, projectID)
	if err != nil {
		return nil, err
	}

	if fw.Organizational != proj.Organizational {
		return nil, apierror.NewConflict("framework %q and project %q have mismatched organizational flags", fw.Name, proj.Title)
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&ProjectFrameworkLink{}).
		Where("tenant = ? AND framework_id = ? AND project_id = ?", tenant.String(), frameworkID, projectID).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("check existing link: %w", err)
	}
	if existing > 0 {
		return nil, apierror.NewConflict("framework %q is already attached to project %q", fw.Name, proj.Title)
	}

	tree, err := s.frameworks.GetTree(ctx, tenant, frameworkID)
	if err != nil {
		return nil, err
	}

	result := &AttachResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link := &ProjectFrameworkLink{
			ID:          uuid.New().String(),
			Tenant:      tenant.String(),
			FrameworkID: frameworkID,
			ProjectID:   projectID,
		}
		if err := tx.Create(link).Error; err != nil {
			// A concurrent attach that won the race trips the unique index
			// here; the whole fan-out of this loser rolls back with it.
			return fmt.Errorf("create link: %w", err)
		}
		result.LinkID = link.ID

		for _, l1 := range tree.Structure {
			for _, l2 := range l1.Items {
				rec := &ImplementationRecord{
					ID:           uuid.New().String(),
					Tenant:       tenant.String(),
					LinkID:       link.ID,
					Level2NodeID: l2.Node.ID,
					Status:       StatusNotStarted,
				}
				if err := tx.Create(rec).Error; err != nil {
					return fmt.Errorf("create level2 implementation record: %w", err)
				}
				result.Level2Created++

				if fw.HierarchyType != framework.HierarchyThreeLevel {
					continue
				}
				for _, l3 := range l2.Items {
					l3ID := l3.ID
					sub := &ImplementationRecord{
						ID:           uuid.New().String(),
						Tenant:       tenant.String(),
						LinkID:       link.ID,
						Level2NodeID: l2.Node.ID,
						Level3NodeID: &l3ID,
						Status:       StatusNotStarted,
					}
					if err := tx.Create(sub).Error; err != nil {
						return fmt.Errorf("create level3 implementation record: %w", err)
					}
					result.Level3Created++
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Detach removes the link between a framework and a project, cascading to
// its implementation records and their risk links. It fails if the pair
// does not exist or if the link is the project's last remaining framework.
// Links pointing at projects that no longer exist are swept first so they
// do not inflate the remaining-framework count.
func (s *LinkStore) Detach(ctx context.Context, tenant tenancy.TenantID, frameworkID, projectID string) error {
	if err := s.sweepOrphans(ctx, tenant); err != nil {
		return err
	}

	var link ProjectFrameworkLink
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND framework_id = ? AND project_id = ?", tenant.String(), frameworkID, projectID).
		First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apierror.NewNotFound("framework link", frameworkID+"/"+projectID)
		}
		return fmt.Errorf("get link: %w", err)
	}

	var remaining int64
	err = s.db.WithContext(ctx).Model(&ProjectFrameworkLink{}).
		Where("tenant = ? AND project_id = ?", tenant.String(), projectID).
		Count(&remaining).Error
	if err != nil {
		return fmt.Errorf("count project frameworks: %w", err)
	}
	if remaining <= 1 {
		return apierror.NewConflict("cannot remove the project's last framework")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recordIDs []string
		err := tx.Model(&ImplementationRecord{}).
			Where("tenant = ? AND link_id = ?", tenant.String(), link.ID).
			Pluck("id", &recordIDs).Error
		if err != nil {
			return fmt.Errorf("list implementation records: %w", err)
		}

		if len(recordIDs) > 0 {
			if err := tx.Where("tenant = ? AND implementation_id IN ?", tenant.String(), recordIDs).Delete(&RiskLink{}).Error; err != nil {
				return fmt.Errorf("delete risk links: %w", err)
			}
		}
		if err := tx.Where("tenant = ? AND link_id = ?", tenant.String(), link.ID).Delete(&ImplementationRecord{}).Error; err != nil {
			return fmt.Errorf("delete implementation records: %w", err)
		}
		if err := tx.Where("tenant = ? AND id = ?", tenant.String(), link.ID).Delete(&ProjectFrameworkLink{}).Error; err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
		return nil
	})
}

// sweepOrphans deletes links whose project no longer exists, along with
// their implementation records and risk links.
func (s *LinkStore) sweepOrphans(ctx context.Context, tenant tenancy.TenantID) error {
	var orphans []ProjectFrameworkLink
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND project_id NOT IN (?)", tenant.String(),
			s.db.Model(&project.Project{}).Select("id").Where("tenant = ?", tenant.String())).
		Find(&orphans).Error
	if err != nil {
		return fmt.Errorf("find orphaned links: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, link := range orphans {
			var recordIDs []string
			if err := tx.Model(&ImplementationRecord{}).
				Where("tenant = ? AND link_id = ?", tenant.String(), link.ID).
				Pluck("id", &recordIDs).Error; err != nil {
				return fmt.Errorf("list orphaned records: %w", err)
			}
			if len(recordIDs) > 0 {
				if err := tx.Where("tenant = ? AND implementation_id IN ?", tenant.String(), recordIDs).Delete(&RiskLink{}).Error; err != nil {
					return fmt.Errorf("delete orphaned risk links: %w", err)
				}
			}
			if err := tx.Where("tenant = ? AND link_id = ?", tenant.String(), link.ID).Delete(&ImplementationRecord{}).Error; err != nil {
				return fmt.Errorf("delete orphaned records: %w", err)
			}
			if err := tx.Where("tenant = ? AND id = ?", tenant.String(), link.ID).Delete(&ProjectFrameworkLink{}).Error; err != nil {
				return fmt.Errorf("delete orphaned link: %w", err)
			}
		}
		return nil
	})
}

// GetLink returns the link row for a framework/project pair.
func (s *LinkStore) GetLink(ctx context.Context, tenant tenancy.TenantID, frameworkID, projectID string) (*ProjectFrameworkLink, error) {
	var link ProjectFrameworkLink
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND framework_id = ? AND project_id = ?", tenant.String(), frameworkID, projectID).
		First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("framework link", frameworkID+"/"+projectID)
		}
		return nil, fmt.Errorf("get link: %w", err)
	}
	return &link, nil
}

// CountLiveLinks counts links to still-existing projects for a framework.
// Satisfies framework.AttachmentChecker for the delete guard.
func (s *LinkStore) CountLiveLinks(ctx context.Context, tenant tenancy.TenantID, frameworkID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ProjectFrameworkLink{}).
		Where("tenant = ? AND framework_id = ? AND project_id IN (?)", tenant.String(), frameworkID,
			s.db.Model(&project.Project{}).Select("id").Where("tenant = ?", tenant.String())).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count live links: %w", err)
	}
	return count, nil
}
