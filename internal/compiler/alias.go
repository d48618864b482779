package compiler

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// AliasAllocator hands out table aliases. One allocator is shared by a
// builder, its subquery builders and its clones, so aliases never collide
// within a compiled operation.
type AliasAllocator struct {
	next atomic.Int64
}

// NewAliasAllocator creates an allocator starting at zero.
func NewAliasAllocator() *AliasAllocator {
	return &AliasAllocator{}
}

// Next returns an alias made of up to three lowercase letters of table
// followed by the allocation counter: "orders" yields "ord0", "ord7", ...
func (a *AliasAllocator) Next(table string) string {
	n := a.next.Add(1) - 1

	var prefix strings.Builder
	for _, r := range strings.ToLower(table) {
		if r >= 'a' && r <= 'z' {
			prefix.WriteRune(r)
			if prefix.Len() == 3 {
				break
			}
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteByte('t')
	}
	return prefix.String() + strconv.FormatInt(n, 10)
}
