package pagination

// Defaults shared by list endpoints
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Limit clamps a requested page size. Zero or negative means def; anything
// above max is max.
func Limit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// Offset clamps a negative offset to zero
func Offset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// HasMore reports whether rows exist past the page that started at offset
// and returned n rows
func HasMore(offset, n, total int) bool {
	return offset+n < total
}
