// Package setonce provides a write-once slot used to detect duplicate keys
// while parsing option blocks.
package setonce

// Cell holds at most one value. The first Set wins; later calls report the
// value that is already stored instead of overwriting it.
type Cell[T any] struct {
	value T
	set   bool
}

// Set stores v if the cell is empty and returns (nil, true). If the cell
// already holds a value it is left untouched and a pointer to it is
// returned together with false.
func (c *Cell[T]) Set(v T) (*T, bool) {
	if c.set {
		return &c.value, false
	}
	c.value = v
	c.set = true
	return nil, true
}

// IsSet reports whether a value has been stored.
func (c *Cell[T]) IsSet() bool {
	return c.set
}

// Take empties the cell and returns the stored value, if any.
func (c *Cell[T]) Take() (T, bool) {
	v, ok := c.value, c.set
	var zero T
	c.value = zero
	c.set = false
	return v, ok
}
