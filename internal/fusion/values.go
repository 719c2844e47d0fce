package fusion

// Values is either one value or an ordered collection of values.
type Values struct {
	collection bool
	items      []any
}

// Single wraps one value.
func Single(v any) Values {
	return Values{items: []any{v}}
}

// Ordered wraps a collection, which may be empty.
func Ordered(vs ...any) Values {
	return Values{collection: true, items: append([]any(nil), vs...)}
}

// IsCollection reports whether v was built by Ordered.
func (v Values) IsCollection() bool {
	return v.collection
}

// Len is 1 for a single value and the collection length otherwise.
func (v Values) Len() int {
	return len(v.items)
}

// First returns the single value, or the first element of a collection.
// It reports false for an empty collection.
func (v Values) First() (any, bool) {
	if len(v.items) == 0 {
		return nil, false
	}

	return v.items[0], true
}

// All returns every value in order.
func (v Values) All() []any {
	return append([]any(nil), v.items...)
}
