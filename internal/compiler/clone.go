package compiler

import "maps"

// Clone returns an independent copy of b for per-call customization.
// Condition, result and order-by lists and the path cache are copied; every
// subquery builder is cloned as well. The alias allocator stays shared, so
// joins added to the clone never reuse an alias of the prototype.
func (b *Builder) Clone() *Builder {
	cp := *b
	cp.paths = maps.Clone(b.paths)

	memo := make(map[*Subquery]*Subquery, len(b.subqueries))
	cp.subqueries = make(map[string]*Subquery, len(b.subqueries))
	for path, sq := range b.subqueries {
		cp.subqueries[path] = sq.cloneMemo(memo)
	}

	cp.conditions = make([]*Condition, len(b.conditions))
	for i, c := range b.conditions {
		cp.conditions[i] = c.clone(memo)
	}

	cp.results = append([]*ResultField(nil), b.results...)
	cp.orderBy = append([]*OrderBy(nil), b.orderBy...)
	return &cp
}
