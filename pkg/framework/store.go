package framework

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// Store provides database operations for framework definitions.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new framework Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the framework tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Framework{}); err != nil {
		return fmt.Errorf("auto-migrate frameworks: %w", err)
	}
	if err := s.db.AutoMigrate(&Level1Node{}); err != nil {
		return fmt.Errorf("auto-migrate level1 nodes: %w", err)
	}
	if err := s.db.AutoMigrate(&Level2Node{}); err != nil {
		return fmt.Errorf("auto-migrate level2 nodes: %w", err)
	}
	if err := s.db.AutoMigrate(&Level3Node{}); err != nil {
		return fmt.Errorf("auto-migrate level3 nodes: %w", err)
	}
	return nil
}

// ImportResult reports the outcome of a framework import.
type ImportResult struct {
	FrameworkID  string `json:"frameworkId"`
	ItemsCreated int    `json:"itemsCreated"`
}

// Import validates the payload, rejects duplicate names (case-insensitive
// within the tenant), then inserts the framework row and every structure
// node in parent-before-child order inside a single transaction. On any
// failure the whole transaction rolls back; partial trees are never
// persisted. ItemsCreated counts every inserted node across all tiers.
func (s *Store) Import(ctx context.Context, tenant tenancy.TenantID, payload *ImportPayload) (*ImportResult, error) {
	if msgs := payload.Validate(); len(msgs) > 0 {
		return nil, &apierror.ValidationError{Messages: msgs}
	}

	nameLower := strings.ToLower(payload.Name)
	var existing int64
	err := s.db.WithContext(ctx).Model(&Framework{}).
		Where("tenant = ? AND name_lower = ?", tenant.String(), nameLower).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("check duplicate framework name: %w", err)
	}
	if existing > 0 {
		return nil, apierror.NewConflict("framework %q already exists", payload.Name)
	}

	fw := &Framework{
		ID:             uuid.New().String(),
		Tenant:         tenant.String(),
		Name:           payload.Name,
		NameLower:      nameLower,
		Description:    payload.Description,
		Version:        payload.Version,
		Organizational: payload.Organizational,
		HierarchyType:  payload.Hierarchy.Type,
		Level1Name:     payload.Hierarchy.Level1Name,
		Level2Name:     payload.Hierarchy.Level2Name,
		Level3Name:     payload.Hierarchy.Level3Name,
	}

	itemsCreated := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fw).Error; err != nil {
			return fmt.Errorf("create framework: %w", err)
		}

		for _, l1 := range payload.Structure {
			l1Row := &Level1Node{
				ID:          uuid.New().String(),
				Tenant:      tenant.String(),
				FrameworkID: fw.ID,
				Title:       l1.Title,
				Description: l1.Description,
				OrderNo:     *l1.OrderNo,
			}
			if err := tx.Create(l1Row).Error; err != nil {
				return fmt.Errorf("create level1 node %q: %w", l1.Title, err)
			}
			itemsCreated++

			for _, l2 := range l1.Items {
				l2Row := &Level2Node{
					ID:               uuid.New().String(),
					Tenant:           tenant.String(),
					FrameworkID:      fw.ID,
					Level1ID:         l1Row.ID,
					Title:            l2.Title,
					Description:      l2.Description,
					OrderNo:          *l2.OrderNo,
					Summary:          l2.Summary,
					Questions:        l2.Questions,
					EvidenceExamples: l2.EvidenceExamples,
					Metadata:         l2.Metadata,
				}
				if err := tx.Create(l2Row).Error; err != nil {
					return fmt.Errorf("create level2 node %q: %w", l2.Title, err)
				}
				itemsCreated++

				// Level3 children only exist under three-level hierarchies;
				// stray items on a two-level payload are not persisted.
				if payload.Hierarchy.Type != HierarchyThreeLevel {
					continue
				}
				for _, l3 := range l2.Items {
					l3Row := &Level3Node{
						ID:               uuid.New().String(),
						Tenant:           tenant.String(),
						FrameworkID:      fw.ID,
						Level2ID:         l2Row.ID,
						Title:            l3.Title,
						Description:      l3.Description,
						OrderNo:          *l3.OrderNo,
						Summary:          l3.Summary,
						Questions:        l3.Questions,
						EvidenceExamples: l3.EvidenceExamples,
						Metadata:         l3.Metadata,
					}
					if err := tx.Create(l3Row).Error; err != nil {
						return fmt.Errorf("create level3 node %q: %w", l3.Title, err)
					}
					itemsCreated++
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ImportResult{FrameworkID: fw.ID, ItemsCreated: itemsCreated}, nil
}

// Get retrieves a framework row by id. Returns NotFoundError if missing.
func (s *Store) Get(ctx context.Context, tenant tenancy.TenantID, id string) (*Framework, error) {
	var fw Framework
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), id).
		First(&fw).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("framework", id)
		}
		return nil, fmt.Errorf("get framework: %w", err)
	}
	return &fw, nil
}

// List returns all frameworks for the tenant ordered by name.
func (s *Store) List(ctx context.Context, tenant tenancy.TenantID) ([]Framework, error) {
	var frameworks []Framework
	err := s.db.WithContext(ctx).
		Where("tenant = ?", tenant.String()).
		Order("name_lower ASC").
		Find(&frameworks).Error
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	return frameworks, nil
}

// Tree is a framework with its fully ordered structure.
type Tree struct {
	Framework Framework    `json:"framework"`
	Structure []TreeLevel1 `json:"structure"`
}

// TreeLevel1 is a Level1 node with ordered children.
type TreeLevel1 struct {
	Node  Level1Node   `json:"node"`
	Items []TreeLevel2 `json:"items"`
}

// TreeLevel2 is a Level2 node with ordered Level3 children (three-level only).
type TreeLevel2 struct {
	Node  Level2Node   `json:"node"`
	Items []Level3Node `json:"items,omitempty"`
}

// NodeCount returns the total node count across all tiers.
func (t *Tree) NodeCount() int {
	n := len(t.Structure)
	for _, l1 := range t.Structure {
		n += len(l1.Items)
		for _, l2 := range l1.Items {
			n += len(l2.Items)
		}
	}
	return n
}

// GetTree fetches a framework and reassembles its nested node structure.
// Nodes are ordered by order_no; equal order values keep insertion order.
func (s *Store) GetTree(ctx context.Context, tenant tenancy.TenantID, id string) (*Tree, error) {
	fw, err := s.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	var level1 []Level1Node
	err = s.db.WithContext(ctx).
		Where("tenant = ? AND framework_id = ?", tenant.String(), id).
		Order("order_no ASC, created_at ASC").
		Find(&level1).Error
	if err != nil {
		return nil, fmt.Errorf("load level1 nodes: %w", err)
	}

	var level2 []Level2Node
	err = s.db.WithContext(ctx).
		Where("tenant = ? AND framework_id = ?", tenant.String(), id).
		Order("order_no ASC, created_at ASC").
		Find(&level2).Error
	if err != nil {
		return nil, fmt.Errorf("load level2 nodes: %w", err)
	}

	var level3 []Level3Node
	if fw.HierarchyType == HierarchyThreeLevel {
		err = s.db.WithContext(ctx).
			Where("tenant = ? AND framework_id = ?", tenant.String(), id).
			Order("order_no ASC, created_at ASC").
			Find(&level3).Error
		if err != nil {
			return nil, fmt.Errorf("load level3 nodes: %w", err)
		}
	}

	level3ByParent := make(map[string][]Level3Node, len(level2))
	for _, n := range level3 {
		level3ByParent[n.Level2ID] = append(level3ByParent[n.Level2ID], n)
	}

	level2ByParent := make(map[string][]TreeLevel2, len(level1))
	for _, n := range level2 {
		level2ByParent[n.Level1ID] = append(level2ByParent[n.Level1ID], TreeLevel2{
			Node:  n,
			Items: level3ByParent[n.ID],
		})
	}

	tree := &Tree{Framework: *fw}
	for _, n := range level1 {
		tree.Structure = append(tree.Structure, TreeLevel1{
			Node:  n,
			Items: level2ByParent[n.ID],
		})
	}

	return tree, nil
}

// AttachmentChecker reports how many live project links reference a
// framework. Implemented by the tracking link store; declared here to avoid
// a package cycle.
type AttachmentChecker interface {
	CountLiveLinks(ctx context.Context, tenant tenancy.TenantID, frameworkID string) (int64, error)
}

// Delete removes a framework and its structure nodes. Deletion is blocked
// while any project link to a still-existing project references it.
func (s *Store) Delete(ctx context.Context, tenant tenancy.TenantID, id string, attachments AttachmentChecker) error {
	if _, err := s.Get(ctx, tenant, id); err != nil {
		return err
	}

	if attachments != nil {
		links, err := attachments.CountLiveLinks(ctx, tenant, id)
		if err != nil {
			return fmt.Errorf("count framework attachments: %w", err)
		}
		if links > 0 {
			return apierror.NewConflict("framework is attached to %d project(s) and cannot be deleted", links)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&Level3Node{}, &Level2Node{}, &Level1Node{}} {
			if err := tx.Where("tenant = ? AND framework_id = ?", tenant.String(), id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete framework nodes: %w", err)
			}
		}
		if err := tx.Where("tenant = ? AND id = ?", tenant.String(), id).Delete(&Framework{}).Error; err != nil {
			return fmt.Errorf("delete framework: %w", err)
		}
		return nil
	})
}
