package domain

// Field is one key/value pair of a document.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered mapping built from one tabular row.
type Document []Field

// Get returns the value stored under key.
func (d Document) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in order.
func (d Document) Keys() []string {
	keys := make([]string, len(d))
	for i, f := range d {
		keys[i] = f.Key
	}
	return keys
}

// Map returns the document as an unordered map. Nested documents, also
// inside slices, are converted as well.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, f := range d {
		m[f.Key] = mapValue(f.Value)
	}
	return m
}

func mapValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Map()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = mapValue(item)
		}
		return out
	default:
		return v
	}
}
