package nodes

const DefaultMaxRetries = 2

// normalizeMaxRetries returns the default when the provided value is invalid.
func normalizeMaxRetries(n int) int {
	if n <= 0 {
		return DefaultMaxRetries
	}
	return n
}
