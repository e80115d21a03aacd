package tdcore

import (
	"container/heap"

	"github.com/alitto/pond"
)

// CellSource is anything that can be pulled from in schema cell order or
// unordered, one cell at a time: a CellReader over a file, or another
// FileCollection. §4.3/§4.4 describe the binary/CSV file as the concrete
// source; this interface is the seam the merge layer is written against.
type CellSource interface {
	Next(dst *Cell) (bool, error)
}

// FileCollection merges a set of independently-sorted (or unsorted)
// CellSources into a single ordered, or arbitrarily concatenated, stream
// (§4.4). Sorted mode keeps a min-priority queue of one pending cell per
// source, keyed by the schema's precedes predicate.
type FileCollection struct {
	schema   *ArraySchema
	sources  []CellSource
	peek     []*Cell
	lastFile int
	sorted   bool
	pq       *cellHeap
	err      error
}

// primeWorkers bounds the worker pool used to prime every source's first
// peek cell in parallel when a collection opens (SPEC_FULL.md DOMAIN
// STACK: alitto/pond, grounded on the teacher's cmd/main.go worker pool).
const primeWorkers = 8

// OpenFileCollection opens a sort-merge (or unsorted-concatenation) view
// over sources, priming every source's first cell concurrently through a
// bounded worker pool before the first Next call (§4.4 "State").
func OpenFileCollection(schema *ArraySchema, sources []CellSource, sorted bool) (*FileCollection, error) {
	fc := &FileCollection{
		schema:  schema,
		sources: sources,
		peek:    make([]*Cell, len(sources)),
		sorted:  sorted,
	}

	pool := pond.New(primeWorkers, len(sources))
	errs := make([]error, len(sources))
	for i := range sources {
		i := i
		pool.Submit(func() {
			cell := &Cell{Schema: schema}
			ok, err := sources[i].Next(cell)
			if err != nil {
				errs[i] = err
				return
			}
			if ok {
				fc.peek[i] = cell
			}
		})
	}
	pool.StopAndWait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	if sorted {
		fc.pq = &cellHeap{schema: schema}
		for i, c := range fc.peek {
			if c != nil {
				heap.Push(fc.pq, cellHeapItem{cell: c, sourceIdx: i})
			}
		}
	}

	return fc, nil
}

// Err returns the first error encountered by the collection, if any.
func (fc *FileCollection) Err() error {
	return fc.err
}

// Next implements §4.4's algorithm: refill the last-consumed source,
// then either advance to the next non-exhausted source (unsorted) or pop
// the priority-queue head (sorted).
func (fc *FileCollection) Next(dst *Cell) (bool, error) {
	if fc.err != nil {
		return false, fc.err
	}

	if fc.sorted {
		return fc.nextSorted(dst)
	}
	return fc.nextUnsorted(dst)
}

// consume reads the next cell of source i into fc.peek[i], pushing onto
// the priority queue in sorted mode.
func (fc *FileCollection) consume(i int) error {
	cell := &Cell{Schema: fc.schema}
	ok, err := fc.sources[i].Next(cell)
	if err != nil {
		return err
	}
	if !ok {
		fc.peek[i] = nil
		return nil
	}
	fc.peek[i] = cell
	if fc.sorted {
		heap.Push(fc.pq, cellHeapItem{cell: cell, sourceIdx: i})
	}
	return nil
}

func (fc *FileCollection) nextUnsorted(dst *Cell) (bool, error) {
	start := fc.lastFile
	if start < 0 {
		start = 0
	}
	for i := 0; i < len(fc.sources); i++ {
		idx := (start + i) % len(fc.sources)
		if fc.peek[idx] != nil {
			*dst = *fc.peek[idx]
			fc.peek[idx] = nil
			if err := fc.consume(idx); err != nil {
				fc.err = err
				return false, err
			}
			fc.lastFile = idx
			return true, nil
		}
	}
	return false, nil
}

func (fc *FileCollection) nextSorted(dst *Cell) (bool, error) {
	if fc.pq.Len() == 0 {
		return false, nil
	}
	top := heap.Pop(fc.pq).(cellHeapItem)
	*dst = *top.cell
	fc.peek[top.sourceIdx] = nil
	fc.lastFile = top.sourceIdx
	if err := fc.consume(top.sourceIdx); err != nil {
		fc.err = err
		return false, err
	}
	return true, nil
}

// cellHeapItem is one entry of the sorted-mode priority queue.
type cellHeapItem struct {
	cell      *Cell
	sourceIdx int
}

// cellHeap is a container/heap min-priority queue ordered by the
// schema's precedes predicate, tie-broken by source index (§4.4
// "Stable tie-break: for equal coordinates the source file with the
// lower index wins").
type cellHeap struct {
	schema *ArraySchema
	items  []cellHeapItem
}

func (h *cellHeap) Len() int { return len(h.items) }

func (h *cellHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	less, err := h.schema.Precedes(a.cell.Coords, b.cell.Coords)
	if err != nil {
		// Only a schema misconfigured for its own coords type (e.g.
		// Hilbert order over float coordinates) reaches here, and that
		// is rejected at NewArraySchema time; a live collection never
		// sees it.
		panic(err)
	}
	if less {
		return true
	}
	succeeds, err := h.schema.Precedes(b.cell.Coords, a.cell.Coords)
	if err != nil {
		panic(err)
	}
	if succeeds {
		return false
	}
	return a.sourceIdx < b.sourceIdx
}

func (h *cellHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *cellHeap) Push(x any) {
	h.items = append(h.items, x.(cellHeapItem))
}

func (h *cellHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

// lastWriterWinsSource wraps a sorted merge of per-fragment sources
// ordered newest-first and drops every cell but the first (= newest) one
// seen for a given coordinate (§4.4 "Consolidation use"). Tombstones
// (cells whose attributes are all DEL) are never specially dropped here:
// since the fragment tree only ever merges adjacent levels and this
// collection has no way to know it is merging the last surviving
// generation, every tombstone is conservatively propagated upward
// (§9 Open Questions, recorded in DESIGN.md).
type lastWriterWinsSource struct {
	schema     *ArraySchema
	inner      *FileCollection
	lastCoords []float64
	hasLast    bool
}

func (l *lastWriterWinsSource) Next(dst *Cell) (bool, error) {
	for {
		ok, err := l.inner.Next(dst)
		if err != nil || !ok {
			return ok, err
		}
		if l.hasLast {
			eq, err := coordsEqual(l.schema, l.lastCoords, dst.Coords)
			if err != nil {
				return false, err
			}
			if eq {
				continue
			}
		}
		l.lastCoords = append(l.lastCoords[:0], dst.Coords...)
		l.hasLast = true
		return true, nil
	}
}

func coordsEqual(schema *ArraySchema, a, b []float64) (bool, error) {
	ab, err := schema.Precedes(a, b)
	if err != nil {
		return false, err
	}
	if ab {
		return false, nil
	}
	ba, err := schema.Precedes(b, a)
	if err != nil {
		return false, err
	}
	return !ba, nil
}

// ConsolidateMerge merges fragmentSources (ordered oldest to newest, as
// they appear in the fragment tree) into a single last-writer-wins
// sorted stream, stamping no explicit ids: the origin fragment index is
// implicit in iteration order, since only the merged output - not the
// provenance - survives into the consolidated fragment (§4.5
// "Consolidation").
func ConsolidateMerge(schema *ArraySchema, fragmentSourcesOldestFirst []CellSource) (CellSource, error) {
	n := len(fragmentSourcesOldestFirst)
	reversed := make([]CellSource, n)
	for i, s := range fragmentSourcesOldestFirst {
		reversed[n-1-i] = s
	}
	fc, err := OpenFileCollection(schema, reversed, true)
	if err != nil {
		return nil, err
	}
	return &lastWriterWinsSource{schema: schema, inner: fc}, nil
}
