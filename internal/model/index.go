package model

// index maps ids to positions in a Document's collections so lookups stay
// constant time on screens with thousands of images. It is built on the
// first lookup and extended when a collection only grew by appends; any
// other change to a collection rebuilds that table. RemoveAnnotations drops
// the index outright.
type index struct {
	projects    table
	datasets    table
	screens     table
	plates      table
	images      table
	rois        table
	annotations table
}

// table indexes one collection. n and last record the length and final
// element it was built from.
type table struct {
	n    int
	last any
	pos  map[LocalID]int
}

// lookup returns the first element of items with the given id.
func lookup[T comparable](t *table, items []T, idOf func(T) LocalID, id LocalID) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	from := 0
	switch {
	case t.pos == nil:
		t.pos = make(map[LocalID]int, len(items))
	case len(items) >= t.n && t.n > 0 && any(items[t.n-1]) == t.last:
		from = t.n
	default:
		t.pos = make(map[LocalID]int, len(items))
	}
	for i := from; i < len(items); i++ {
		if _, dup := t.pos[idOf(items[i])]; !dup {
			t.pos[idOf(items[i])] = i
		}
	}
	t.n, t.last = len(items), any(items[len(items)-1])

	i, ok := t.pos[id]
	if !ok {
		return zero, false
	}
	return items[i], true
}

func (d *Document) lookups() *index {
	if d.idx == nil {
		d.idx = &index{}
	}
	return d.idx
}
