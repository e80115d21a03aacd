package tdcore

// CellIterator is the query-facing read cursor returned by Begin*/RBegin*
// (§4.3 "Iterators"). Next returns (nil, false, nil) once exhausted.
type CellIterator interface {
	Next() (*Cell, bool, error)
	Close() error
}

// inRange reports whether coords falls within subarray (nil means "no
// restriction", i.e. the whole domain).
func inRange(subarray *Range, coords []float64) bool {
	if subarray == nil {
		return true
	}
	for i, v := range coords {
		if v < subarray.Lo[i] || v > subarray.Hi[i] {
			return false
		}
	}
	return true
}

// openFragmentSources opens every currently visible fragment of an open
// descriptor, oldest first, as CellSources ready for sort-merge.
func openFragmentSources(ad int) (*openArray, []*fragmentCellSource, error) {
	oa, err := lookup(ad)
	if err != nil {
		return nil, nil, err
	}
	names, err := FragmentNames(ad)
	if err != nil {
		return nil, nil, err
	}
	attrIDs := oa.schema.AttributeIDsAll()
	sources := make([]*fragmentCellSource, 0, len(names))
	for _, n := range names {
		fs, err := openFragmentCellSource(fragmentDir(oa.dir, n), oa.schema, attrIDs)
		if err != nil {
			for _, s := range sources {
				s.Close()
			}
			return nil, nil, err
		}
		sources = append(sources, fs)
	}
	return oa, sources, nil
}

// sparseIterator merges every fragment's sorted stream into one
// last-writer-wins ascending sequence, filtering to subarray if given
// (§4.3 "begin<T>: sparse forward iterator").
type sparseIterator struct {
	schema   *ArraySchema
	merged   CellSource
	subarray *Range
	closers  []*fragmentCellSource
}

// BeginSparse opens a forward sparse iterator over an open descriptor's
// current fragments.
func BeginSparse(ad int, subarray *Range) (*sparseIterator, error) {
	oa, sources, err := openFragmentSources(ad)
	if err != nil {
		return nil, err
	}
	cellSources := make([]CellSource, len(sources))
	for i, s := range sources {
		cellSources[i] = s
	}
	merged, err := ConsolidateMerge(oa.schema, cellSources)
	if err != nil {
		for _, s := range sources {
			s.Close()
		}
		return nil, err
	}
	return &sparseIterator{schema: oa.schema, merged: merged, subarray: subarray, closers: sources}, nil
}

func (it *sparseIterator) Next() (*Cell, bool, error) {
	for {
		c := &Cell{}
		ok, err := it.merged.Next(c)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if !inRange(it.subarray, c.Coords) {
			continue
		}
		return c, true, nil
	}
}

func (it *sparseIterator) Close() error {
	var firstErr error
	for _, s := range it.closers {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// reverseSparseIterator drains the forward merge once and replays it
// back to front (§4.3 "rbegin<T>: sparse reverse iterator"). Simpler
// than a descending sort-merge heap and adequate for the bounded
// fragment counts this engine targets; DESIGN.md records the tradeoff.
type reverseSparseIterator struct {
	cells []*Cell
	idx   int
}

// RBeginSparse opens a reverse sparse iterator.
func RBeginSparse(ad int, subarray *Range) (*reverseSparseIterator, error) {
	fwd, err := BeginSparse(ad, subarray)
	if err != nil {
		return nil, err
	}
	defer fwd.Close()

	var cells []*Cell
	for {
		c, ok, err := fwd.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		cells = append(cells, c)
	}
	return &reverseSparseIterator{cells: cells, idx: len(cells) - 1}, nil
}

func (it *reverseSparseIterator) Next() (*Cell, bool, error) {
	if it.idx < 0 {
		return nil, false, nil
	}
	c := it.cells[it.idx]
	it.idx--
	return c, true, nil
}

func (it *reverseSparseIterator) Close() error { return nil }

// denseIterator walks every coordinate of a dense subarray in the
// schema's cell order, emitting the written cell when a fragment has
// one and a NULL-filled synthetic cell otherwise (§4.3 "begin_dense<T>").
// Reverse dense iteration is not supported (§4.3 explicitly calls this
// out; RBeginDense returns a State error).
type denseIterator struct {
	schema  *ArraySchema
	attrIDs []int
	colMajor bool
	dims    []Dimension
	cur     []float64
	started bool
	done    bool
	sparse  *sparseIterator
	peeked  *Cell
	peekOK  bool
}

// BeginDense opens a forward dense iterator over subarray (the whole
// domain if nil). Only row-major and column-major cell orders support
// dense enumeration; a Hilbert-ordered schema fails with ErrInvalidArgument.
func BeginDense(ad int, attrIDs []int, subarray *Range) (*denseIterator, error) {
	oa, err := lookup(ad)
	if err != nil {
		return nil, err
	}
	if oa.schema.CellOrder() != RowMajor && oa.schema.CellOrder() != ColMajor {
		return nil, newErr(ErrInvalidArgument, "dense iteration requires row-major or column-major cell order", nil)
	}

	dims := make([]Dimension, oa.schema.DimNum())
	for i, d := range oa.schema.Dimensions {
		dims[i] = d
		if subarray != nil {
			dims[i] = Dimension{Name: d.Name, Lo: subarray.Lo[i], Hi: subarray.Hi[i]}
		}
	}

	sparse, err := BeginSparse(ad, subarray)
	if err != nil {
		return nil, err
	}

	cur := make([]float64, len(dims))
	for i, d := range dims {
		cur[i] = d.Lo
	}

	it := &denseIterator{
		schema:   oa.schema,
		attrIDs:  attrIDs,
		colMajor: oa.schema.CellOrder() == ColMajor,
		dims:     dims,
		cur:      cur,
		sparse:   sparse,
	}
	for _, d := range dims {
		if d.Lo > d.Hi {
			it.done = true
		}
	}
	return it, nil
}

// RBeginDense always fails: reverse dense iteration is unsupported.
func RBeginDense(ad int, attrIDs []int, subarray *Range) (*denseIterator, error) {
	return nil, newErr(ErrState, "reverse dense iteration is not supported", nil)
}

func (it *denseIterator) advance() {
	if it.colMajor {
		for i := 0; i < len(it.cur); i++ {
			it.cur[i]++
			if it.cur[i] <= it.dims[i].Hi {
				return
			}
			it.cur[i] = it.dims[i].Lo
		}
	} else {
		for i := len(it.cur) - 1; i >= 0; i-- {
			it.cur[i]++
			if it.cur[i] <= it.dims[i].Hi {
				return
			}
			it.cur[i] = it.dims[i].Lo
		}
	}
	it.done = true
}

func (it *denseIterator) fillPeek() error {
	if it.peekOK || it.peeked != nil {
		return nil
	}
	c, ok, err := it.sparse.Next()
	if err != nil {
		return err
	}
	if ok {
		it.peeked = c
		it.peekOK = true
	}
	return nil
}

func (it *denseIterator) Next() (*Cell, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if err := it.fillPeek(); err != nil {
		return nil, false, err
	}

	coords := append([]float64(nil), it.cur...)

	var out *Cell
	eq := false
	if it.peekOK {
		var err error
		eq, err = coordsEqual(it.schema, it.peeked.Coords, coords)
		if err != nil {
			return nil, false, err
		}
	}
	if eq {
		out = it.peeked
		it.peeked = nil
		it.peekOK = false
	} else {
		var payload []byte
		for _, id := range it.attrIDs {
			payload = append(payload, encodeNullField(it.schema.Attributes[id])...)
		}
		out = &Cell{Schema: it.schema, AttrIDs: it.attrIDs, Coords: coords, Payload: payload}
	}

	it.advance()
	return out, true, nil
}

func (it *denseIterator) Close() error {
	return it.sparse.Close()
}
