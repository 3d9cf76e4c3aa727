package graph

import (
	"strconv"
	"strings"
)

// idAllocator hands out node ids of the form "<type>-<n>". n comes from one
// counter per store that only moves forward, so ids are never reused after
// deletions.
type idAllocator struct {
	last uint64
}

func (a *idAllocator) next(typeID string, taken func(string) bool) string {
	for {
		a.last++
		id := typeID + "-" + strconv.FormatUint(a.last, 10)
		if !taken(id) {
			return id
		}
	}
}

// observe advances the counter past the numeric suffix of an existing id.
func (a *idAllocator) observe(id string) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 || i == len(id)-1 {
		return
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return
	}
	if n > a.last {
		a.last = n
	}
}
