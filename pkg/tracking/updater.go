package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// allowedFields is the fixed allow-list of patchable implementation record
// fields, keyed by payload name, mapped to column name. Unknown payload
// fields are silently ignored.
var allowedFields = map[string]string{
	"status":                 "status",
	"owner":                  "owner",
	"reviewer":               "reviewer",
	"approver":               "approver",
	"due_date":               "due_date",
	"implementation_details": "implementation_details",
	"evidence_links":         "evidence_links",
	"feedback_links":         "feedback_links",
	"auditor_feedback":       "auditor_feedback",
}

// Patch is a partial update decoded with field presence preserved: a key
// absent from the payload leaves the column untouched, while an explicit
// null clears nullable columns (due_date).
type Patch struct {
	fields        map[string]json.RawMessage
	RisksToAdd    []string
	RisksToRemove []string
}

// ParsePatch decodes a raw JSON object into a Patch.
func ParsePatch(raw []byte) (*Patch, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, apierror.NewValidation("invalid JSON payload: " + err.Error())
	}

	p := &Patch{fields: make(map[string]json.RawMessage)}
	for key, value := range all {
		switch key {
		case "risks_to_add":
			if err := json.Unmarshal(value, &p.RisksToAdd); err != nil {
				return nil, apierror.NewValidation("risks_to_add must be a string array")
			}
		case "risks_to_remove":
			if err := json.Unmarshal(value, &p.RisksToRemove); err != nil {
				return nil, apierror.NewValidation("risks_to_remove must be a string array")
			}
		default:
			if _, ok := allowedFields[key]; ok {
				p.fields[key] = value
			}
		}
	}
	return p, nil
}

// Empty reports whether the patch carries no allowed field and no risk list.
func (p *Patch) Empty() bool {
	return len(p.fields) == 0 && len(p.RisksToAdd) == 0 && len(p.RisksToRemove) == 0
}

// Updater applies allow-listed partial updates to implementation records
// and adjusts their risk links.
type Updater struct {
	db *gorm.DB
}

// NewUpdater creates a new Updater.
func NewUpdater(db *gorm.DB) *Updater {
	return &Updater{db: db}
}

// Update applies the patch to one implementation record. An empty effective
// patch fails with a validation error rather than silently succeeding;
// risks_to_add ignores already-existing pairs and risks_to_remove is a set
// difference, so both lists apply idempotently. Every update stamps
// updated_at.
func (u *Updater) Update(ctx context.Context, tenant tenancy.TenantID, implID string, patch *Patch) (*ImplementationRecord, error) {
	if patch.Empty() {
		return nil, apierror.NewValidation("no fields to update")
	}

	var record ImplementationRecord
	err := u.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), implID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("implementation record", implID)
		}
		return nil, fmt.Errorf("get implementation record: %w", err)
	}

	updates, err := patch.columnUpdates()
	if err != nil {
		return nil, err
	}

	err = u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			updates["updated_at"] = time.Now().UTC()
			err := tx.Model(&ImplementationRecord{}).
				Where("tenant = ? AND id = ?", tenant.String(), implID).
				Updates(updates).Error
			if err != nil {
				return fmt.Errorf("update implementation record: %w", err)
			}
		} else if len(patch.RisksToAdd) > 0 || len(patch.RisksToRemove) > 0 {
			err := tx.Model(&ImplementationRecord{}).
				Where("tenant = ? AND id = ?", tenant.String(), implID).
				Update("updated_at", time.Now().UTC()).Error
			if err != nil {
				return fmt.Errorf("stamp implementation record: %w", err)
			}
		}

		for _, riskID := range patch.RisksToAdd {
			var count int64
			err := tx.Model(&RiskLink{}).
				Where("implementation_id = ? AND risk_id = ?", implID, riskID).
				Count(&count).Error
			if err != nil {
				return fmt.Errorf("check risk link: %w", err)
			}
			if count > 0 {
				continue
			}
			link := &RiskLink{Tenant: tenant.String(), ImplementationID: implID, RiskID: riskID}
			if err := tx.Create(link).Error; err != nil {
				return fmt.Errorf("create risk link: %w", err)
			}
		}

		if len(patch.RisksToRemove) > 0 {
			err := tx.Where("implementation_id = ? AND risk_id IN ?", implID, patch.RisksToRemove).
				Delete(&RiskLink{}).Error
			if err != nil {
				return fmt.Errorf("delete risk links: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = u.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), implID).
		First(&record).Error
	if err != nil {
		return nil, fmt.Errorf("reload implementation record: %w", err)
	}
	return &record, nil
}

// columnUpdates converts present patch fields into a column update map,
// validating values along the way. A null due_date becomes a nil column
// value, clearing it.
func (p *Patch) columnUpdates() (map[string]any, error) {
	updates := make(map[string]any, len(p.fields))

	for key, raw := range p.fields {
		column := allowedFields[key]
		switch key {
		case "status":
			var s Status
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, apierror.NewValidation("status must be a string")
			}
			if !s.Valid() {
				return nil, apierror.NewValidation(fmt.Sprintf("status %q is not a valid status", s))
			}
			updates[column] = s
		case "due_date":
			if string(raw) == "null" {
				updates[column] = nil
				continue
			}
			var due time.Time
			if err := json.Unmarshal(raw, &due); err != nil {
				return nil, apierror.NewValidation("due_date must be an RFC 3339 timestamp or null")
			}
			updates[column] = due
		case "evidence_links", "feedback_links":
			var links []string
			if err := json.Unmarshal(raw, &links); err != nil {
				return nil, apierror.NewValidation(key + " must be a string array")
			}
			encoded, err := json.Marshal(links)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", key, err)
			}
			updates[column] = string(encoded)
		default:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, apierror.NewValidation(key + " must be a string")
			}
			updates[column] = s
		}
	}

	return updates, nil
}

// Get retrieves one implementation record by id.
func (u *Updater) Get(ctx context.Context, tenant tenancy.TenantID, implID string) (*ImplementationRecord, error) {
	var record ImplementationRecord
	err := u.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), implID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("implementation record", implID)
		}
		return nil, fmt.Errorf("get implementation record: %w", err)
	}
	return &record, nil
}

// RiskIDs returns the risk ids linked to an implementation record.
func (u *Updater) RiskIDs(ctx context.Context, tenant tenancy.TenantID, implID string) ([]string, error) {
	var ids []string
	err := u.db.WithContext(ctx).Model(&RiskLink{}).
		Where("tenant = ? AND implementation_id = ?", tenant.String(), implID).
		Order("risk_id ASC").
		Pluck("risk_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list risk links: %w", err)
	}
	return ids, nil
}
