package shared

// ClampLimit normalises a requested page size into the allowed window.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ClampOffset normalises a requested offset.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
