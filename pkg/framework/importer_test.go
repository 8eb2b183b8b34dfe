package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func validTwoLevelPayload() *ImportPayload {
	return &ImportPayload{
		Name:        "SOC 2",
		Description: "Trust services criteria",
		Version:     "2017",
		Hierarchy: HierarchySpec{
			Type:       HierarchyTwoLevel,
			Level1Name: "Category",
			Level2Name: "Criteria",
		},
		Structure: []Level1Payload{
			{
				Title:   "Security",
				OrderNo: intPtr(1),
				Items: []Level2Payload{
					{Title: "CC1.1", OrderNo: intPtr(1), Summary: "Control environment"},
					{Title: "CC1.2", OrderNo: intPtr(2)},
				},
			},
		},
	}
}

func validThreeLevelPayload() *ImportPayload {
	return &ImportPayload{
		Name:        "ISO 27001",
		Description: "Information security management",
		Hierarchy: HierarchySpec{
			Type:       HierarchyThreeLevel,
			Level1Name: "Domain",
			Level2Name: "Control",
			Level3Name: "Subcontrol",
		},
		Structure: []Level1Payload{
			{
				Title:   "Access Control",
				OrderNo: intPtr(1),
				Items: []Level2Payload{
					{
						Title:   "A.9.1",
						OrderNo: intPtr(1),
						Items: []Level3Payload{
							{Title: "A.9.1.1", OrderNo: intPtr(1)},
							{Title: "A.9.1.2", OrderNo: intPtr(2)},
						},
					},
				},
			},
		},
	}
}

func TestValidatePassesValidPayloads(t *testing.T) {
	assert.Empty(t, validTwoLevelPayload().Validate())
	assert.Empty(t, validThreeLevelPayload().Validate())
}

func TestValidateAccumulatesAllFailures(t *testing.T) {
	p := &ImportPayload{
		Hierarchy: HierarchySpec{Type: "four_level"},
	}
	msgs := p.Validate()

	assert.Contains(t, msgs, "name is required")
	assert.Contains(t, msgs, "description is required")
	assert.Contains(t, msgs, "hierarchy.level1_name is required")
	assert.Contains(t, msgs, "hierarchy.level2_name is required")
	assert.Contains(t, msgs, "structure must contain at least one node")
	require.GreaterOrEqual(t, len(msgs), 5)
}

func TestValidateRejectsUnknownHierarchyType(t *testing.T) {
	p := validTwoLevelPayload()
	p.Hierarchy.Type = "five_level"
	msgs := p.Validate()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "hierarchy.type must be")
}

func TestValidateRequiresLevel3NameForThreeLevel(t *testing.T) {
	p := validThreeLevelPayload()
	p.Hierarchy.Level3Name = ""
	msgs := p.Validate()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "level3_name is required")
}

func TestValidateRequiresNodeTitlesAndOrder(t *testing.T) {
	p := validTwoLevelPayload()
	p.Structure[0].Items[1].Title = ""
	p.Structure[0].Items[1].OrderNo = nil
	msgs := p.Validate()
	assert.Contains(t, msgs, "structure[0].items[1]: title is required")
	assert.Contains(t, msgs, "structure[0].items[1]: order_no is required")
}

func TestValidateIgnoresLevel3NodesOnTwoLevel(t *testing.T) {
	p := validTwoLevelPayload()
	// Stray level-3 items on a two-level payload are not validated: they
	// are dropped at import time.
	p.Structure[0].Items[0].Items = []Level3Payload{{Title: ""}}
	assert.Empty(t, p.Validate())
}
