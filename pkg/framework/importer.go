package framework

import (
	"fmt"
)

// ImportPayload is the nested framework import format. The flattened row
// format (see rows.go) is reconstructed into this shape before validation.
type ImportPayload struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Version        string          `json:"version,omitempty"`
	Organizational bool            `json:"is_organizational"`
	Hierarchy      HierarchySpec   `json:"hierarchy"`
	Structure      []Level1Payload `json:"structure"`
}

// HierarchySpec names the tiers of an imported framework.
type HierarchySpec struct {
	Type       HierarchyType `json:"type"`
	Level1Name string        `json:"level1_name"`
	Level2Name string        `json:"level2_name"`
	Level3Name string        `json:"level3_name,omitempty"`
}

// Level1Payload is a top-tier node in the import payload.
type Level1Payload struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	OrderNo     *int            `json:"order_no"`
	Items       []Level2Payload `json:"items"`
}

// Level2Payload is a mid-tier node in the import payload.
type Level2Payload struct {
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	OrderNo          *int            `json:"order_no"`
	Summary          string          `json:"summary,omitempty"`
	Questions        []string        `json:"questions,omitempty"`
	EvidenceExamples []string        `json:"evidence_examples,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	Items            []Level3Payload `json:"items,omitempty"`
}

// Level3Payload is a bottom-tier node in the import payload, meaningful only
// under three-level hierarchies.
type Level3Payload struct {
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	OrderNo          *int           `json:"order_no"`
	Summary          string         `json:"summary,omitempty"`
	Questions        []string       `json:"questions,omitempty"`
	EvidenceExamples []string       `json:"evidence_examples,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validate checks the payload structurally and returns the full list of
// failures. It runs before any write; an empty result means the payload is
// importable.
func (p *ImportPayload) Validate() []string {
	var msgs []string

	if p.Name == "" {
		msgs = append(msgs, "name is required")
	}
	if p.Description == "" {
		msgs = append(msgs, "description is required")
	}

	if !p.Hierarchy.Type.Valid() {
		msgs = append(msgs, fmt.Sprintf("hierarchy.type must be %q or %q", HierarchyTwoLevel, HierarchyThreeLevel))
	}
	if p.Hierarchy.Level1Name == "" {
		msgs = append(msgs, "hierarchy.level1_name is required")
	}
	if p.Hierarchy.Level2Name == "" {
		msgs = append(msgs, "hierarchy.level2_name is required")
	}
	if p.Hierarchy.Type == HierarchyThreeLevel && p.Hierarchy.Level3Name == "" {
		msgs = append(msgs, "hierarchy.level3_name is required for three-level hierarchies")
	}

	if len(p.Structure) == 0 {
		msgs = append(msgs, "structure must contain at least one node")
	}

	for i, l1 := range p.Structure {
		if l1.Title == "" {
			msgs = append(msgs, fmt.Sprintf("structure[%d]: title is required", i))
		}
		if l1.OrderNo == nil {
			msgs = append(msgs, fmt.Sprintf("structure[%d]: order_no is required", i))
		}
		for j, l2 := range l1.Items {
			if l2.Title == "" {
				msgs = append(msgs, fmt.Sprintf("structure[%d].items[%d]: title is required", i, j))
			}
			if l2.OrderNo == nil {
				msgs = append(msgs, fmt.Sprintf("structure[%d].items[%d]: order_no is required", i, j))
			}
			if p.Hierarchy.Type == HierarchyThreeLevel {
				for k, l3 := range l2.Items {
					if l3.Title == "" {
						msgs = append(msgs, fmt.Sprintf("structure[%d].items[%d].items[%d]: title is required", i, j, k))
					}
					if l3.OrderNo == nil {
						msgs = append(msgs, fmt.Sprintf("structure[%d].items[%d].items[%d]: order_no is required", i, j, k))
					}
				}
			}
		}
	}

	return msgs
}
