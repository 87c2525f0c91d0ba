package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func numbered(n int) []Record {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, Record{"pos": i})
	}
	return records
}

func limitOf(n int) *int { return &n }

func TestPaginate(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		limit   *int
		offset  int
		want    int
		firstAt int
	}{
		{name: "nil limit returns the rest", total: 10, limit: nil, offset: 3, want: 7, firstAt: 3},
		{name: "window inside the collection", total: 10, limit: limitOf(4), offset: 2, want: 4, firstAt: 2},
		{name: "window clipped at the end", total: 10, limit: limitOf(9), offset: 8, want: 2, firstAt: 8},
		{name: "zero limit yields nothing", total: 10, limit: limitOf(0), offset: 0, want: 0},
		{name: "negative limit clamps to zero", total: 10, limit: limitOf(-5), offset: 0, want: 0},
		{name: "negative offset reads from the start", total: 10, limit: limitOf(2), offset: -3, want: 2, firstAt: 0},
		{name: "offset at the length yields nothing", total: 10, limit: nil, offset: 10, want: 0},
		{name: "offset beyond the length yields nothing", total: 10, limit: limitOf(5), offset: 42, want: 0},
		{name: "empty collection", total: 0, limit: limitOf(5), offset: 0, want: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Paginate(numbered(test.total), test.limit, test.offset)
			assert.Len(t, got, test.want)
			if test.want > 0 {
				assert.Equal(t, test.firstAt, got[0]["pos"])
			}
		})
	}
}

func TestPaginateKeepsOrder(t *testing.T) {
	got := Paginate(numbered(5), limitOf(3), 1)

	positions := make([]int, 0, len(got))
	for _, r := range got {
		positions = append(positions, r["pos"].(int))
	}
	assert.Equal(t, []int{1, 2, 3}, positions)
}
