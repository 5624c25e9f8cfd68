package domain

// Change describes a modification slot for a clearable field in an update
// event. A nil *Change means "leave the current value untouched"; a Change
// with a nil Value means "clear the field"; a Change with a non-nil Value
// replaces it.
type Change[T any] struct {
	Value *T `json:"value"`
}

// Set returns a Change that replaces the field with v.
func Set[T any](v T) *Change[T] {
	return &Change[T]{Value: &v}
}

// Clear returns a Change that clears the field.
func Clear[T any]() *Change[T] {
	return &Change[T]{}
}

// Apply resolves the change against the current value.
func (c *Change[T]) Apply(current *T) *T {
	if c == nil {
		return current
	}
	return c.Value
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func changeOf[T comparable](v *T) *Change[T] {
	if v == nil {
		return Clear[T]()
	}
	return Set(*v)
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
