package assets

// AttributeName resolves the display name of an object attribute through a
// three-stage fallback: the embedded type definition, then the
// caller-supplied id-to-name table, then the raw attribute id. The table is
// needed because the cloud bulk-query endpoint returns attribute
// definitions by id only.
func AttributeName(attr ObjectAttribute, nameByID map[string]string) string {
	if attr.TypeInfo != nil && attr.TypeInfo.Name != "" {
		return attr.TypeInfo.Name
	}
	if name, ok := nameByID[attr.AttributeID]; ok && name != "" {
		return name
	}
	return attr.AttributeID
}

// attributeValue collapses one attribute's raw value list: zero values map
// to nil, a single value to a scalar (displayValue preferred over value),
// multiple values to an array.
func attributeValue(values []AttributeValue) any {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return scalarValue(values[0])
	default:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = scalarValue(v)
		}
		return out
	}
}

func scalarValue(v AttributeValue) any {
	if v.DisplayValue != "" {
		return v.DisplayValue
	}
	return v.Value
}

// TransformAttributes converts a raw attribute list into a flat name-to-
// value map using AttributeName for identity and attributeValue for
// collapsing.
func TransformAttributes(attrs []ObjectAttribute, nameByID map[string]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		out[AttributeName(attr, nameByID)] = attributeValue(attr.Values)
	}
	return out
}
