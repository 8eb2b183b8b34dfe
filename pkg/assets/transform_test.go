package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributeNameFallbackChain(t *testing.T) {
	nameByID := map[string]string{"7": "Owner"}

	// Embedded definition wins.
	attr := ObjectAttribute{
		AttributeID: "7",
		TypeInfo:    &AttributeDef{ID: "7", Name: "Responsible"},
	}
	assert.Equal(t, "Responsible", AttributeName(attr, nameByID))

	// Lookup table next.
	attr.TypeInfo = nil
	assert.Equal(t, "Owner", AttributeName(attr, nameByID))

	// An empty embedded name falls through to the table too.
	attr.TypeInfo = &AttributeDef{ID: "7"}
	assert.Equal(t, "Owner", AttributeName(attr, nameByID))

	// Raw id as last resort.
	attr.AttributeID = "99"
	attr.TypeInfo = nil
	assert.Equal(t, "99", AttributeName(attr, nameByID))
}

func TestTransformAttributesCollapsesValues(t *testing.T) {
	attrs := []ObjectAttribute{
		{
			AttributeID: "1",
			TypeInfo:    &AttributeDef{Name: "Name"},
			Values:      []AttributeValue{{Value: "pg-1", DisplayValue: "Payment Gateway"}},
		},
		{
			AttributeID: "2",
			TypeInfo:    &AttributeDef{Name: "Tags"},
			Values: []AttributeValue{
				{Value: "prod"},
				{Value: "pci"},
			},
		},
		{
			AttributeID: "3",
			TypeInfo:    &AttributeDef{Name: "Notes"},
		},
	}

	out := TransformAttributes(attrs, nil)
	// Single value collapses to a scalar with displayValue preferred.
	assert.Equal(t, "Payment Gateway", out["Name"])
	// Multiple values stay a list.
	assert.Equal(t, []any{"prod", "pci"}, out["Tags"])
	// No values means nil, but the key is still present.
	val, ok := out["Notes"]
	assert.True(t, ok)
	assert.Nil(t, val)
}
