package assets

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/project"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// titleCandidates and goalCandidates are the fixed priority lists of
// attribute names the writer derives project fields from.
var (
	titleCandidates = []string{"Name", "Title", "Summary", "Key"}
	goalCandidates  = []string{"Description / Purpose", "Description", "Purpose", "Goal"}
)

// Writer creates, updates, and deletes the host project records that
// represent external assets, tagging them with the jira_assets provenance
// marker so the rest of the system can tell them from native projects.
type Writer struct {
	db       *gorm.DB
	projects *project.Store
}

// NewWriter creates a new Writer.
func NewWriter(db *gorm.DB, projects *project.Store) *Writer {
	return &Writer{db: db, projects: projects}
}

// pickAttribute returns the first candidate attribute present in the map
// with a non-empty string value, falling back to fallback.
func pickAttribute(attrs map[string]any, candidates []string, fallback string) string {
	for _, name := range candidates {
		if v, ok := attrs[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

// CreateProject mints a new host project from the transformed attribute
// map. The external label is the title fallback when no candidate attribute
// is present.
func (w *Writer) CreateProject(ctx context.Context, tenant tenancy.TenantID, label string, attrs map[string]any) (*project.Project, error) {
	p := &project.Project{
		Title:  pickAttribute(attrs, titleCandidates, label),
		Goal:   pickAttribute(attrs, goalCandidates, ""),
		Source: project.SourceJiraAssets,
	}
	if p.Title == "" {
		p.Title = "Untitled asset"
	}
	if err := w.projects.Create(ctx, tenant, p); err != nil {
		return nil, fmt.Errorf("create asset project: %w", err)
	}
	return p, nil
}

// UpdateProject refreshes the title and goal of an existing asset project
// from a newer attribute map.
func (w *Writer) UpdateProject(ctx context.Context, tenant tenancy.TenantID, projectID, label string, attrs map[string]any) error {
	p, err := w.projects.Get(ctx, tenant, projectID)
	if err != nil {
		return err
	}
	p.Title = pickAttribute(attrs, titleCandidates, label)
	if p.Title == "" {
		p.Title = "Untitled asset"
	}
	p.Goal = pickAttribute(attrs, goalCandidates, p.Goal)
	if err := w.projects.Update(ctx, tenant, p); err != nil {
		return fmt.Errorf("update asset project: %w", err)
	}
	return nil
}

// DeleteProject removes the host project for an asset that disappeared
// externally. The minted code is never reused.
func (w *Writer) DeleteProject(ctx context.Context, tenant tenancy.TenantID, projectID string) error {
	if err := w.projects.Delete(ctx, tenant, projectID); err != nil {
		return fmt.Errorf("delete asset project: %w", err)
	}
	return nil
}
