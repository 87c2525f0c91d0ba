package query

// Paginate returns the [offset, offset+limit) window of records. A
// negative offset reads from the start, a nil limit reads to the end, a
// negative limit yields nothing.
func Paginate(records []Record, limit *int, offset int) []Record {
	start := offset
	if start < 0 {
		start = 0
	}
	if start >= len(records) {
		return []Record{}
	}
	if limit == nil {
		return records[start:]
	}
	n := *limit
	if n < 0 {
		n = 0
	}
	end := start + n
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
