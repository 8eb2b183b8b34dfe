package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// Store provides database operations for host projects.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new project Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the project tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Project{}); err != nil {
		return fmt.Errorf("auto-migrate projects: %w", err)
	}
	if err := s.db.AutoMigrate(&CodeSequence{}); err != nil {
		return fmt.Errorf("auto-migrate project code sequences: %w", err)
	}
	return nil
}

// MintCode claims the next value of the tenant's code sequence inside tx and
// formats it as "UC-J<n>". The row is created on first use. Claimed values
// are never reused; a rolled-back caller transaction releases nothing because
// the increment rolls back with it, but a committed delete never returns its
// code to the pool.
func MintCode(tx *gorm.DB, tenant tenancy.TenantID) (string, error) {
	seq := CodeSequence{Tenant: tenant.String(), NextValue: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return "", fmt.Errorf("ensure code sequence: %w", err)
	}

	// The atomic increment takes the row lock; concurrent minters serialize
	// here until the surrounding transaction commits.
	err := tx.Model(&CodeSequence{}).
		Where("tenant = ?", tenant.String()).
		Update("next_value", gorm.Expr("next_value + 1")).Error
	if err != nil {
		return "", fmt.Errorf("advance code sequence: %w", err)
	}

	if err := tx.Where("tenant = ?", tenant.String()).First(&seq).Error; err != nil {
		return "", fmt.Errorf("read code sequence: %w", err)
	}

	return fmt.Sprintf("UC-J%d", seq.NextValue-1), nil
}

// Create inserts a project, minting its code in the same transaction.
func (s *Store) Create(ctx context.Context, tenant tenancy.TenantID, p *Project) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.Tenant = tenant.String()
		if p.Source == "" {
			p.Source = SourceNative
		}
		if p.Code == "" {
			code, err := MintCode(tx, tenant)
			if err != nil {
				return err
			}
			p.Code = code
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return nil
	})
}

// Get retrieves a project by id. Returns NotFoundError if missing.
func (s *Store) Get(ctx context.Context, tenant tenancy.TenantID, id string) (*Project, error) {
	var p Project
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), id).
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("project", id)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// Exists reports whether a project with the given id exists for the tenant.
func (s *Store) Exists(ctx context.Context, tenant tenancy.TenantID, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Project{}).
		Where("tenant = ? AND id = ?", tenant.String(), id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check project existence: %w", err)
	}
	return count > 0, nil
}

// List returns all projects for the tenant, optionally filtered by source.
func (s *Store) List(ctx context.Context, tenant tenancy.TenantID, source Source) ([]Project, error) {
	query := s.db.WithContext(ctx).Where("tenant = ?", tenant.String())
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var projects []Project
	if err := query.Order("code ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Update saves changed title/goal fields of an existing project.
func (s *Store) Update(ctx context.Context, tenant tenancy.TenantID, p *Project) error {
	err := s.db.WithContext(ctx).Model(&Project{}).
		Where("tenant = ? AND id = ?", tenant.String(), p.ID).
		Updates(map[string]any{"title": p.Title, "goal": p.Goal}).Error
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// Delete removes a project record. The code it held is never minted again.
func (s *Store) Delete(ctx context.Context, tenant tenancy.TenantID, id string) error {
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), id).
		Delete(&Project{}).Error
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}
