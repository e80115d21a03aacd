package tdcore

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Mode is an array descriptor's open mode (§3 "ArrayDescriptor").
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
)

// MaxOpenArrays bounds the process-wide descriptor table (§3, §8 Property
// 7 "Descriptor boundedness").
const MaxOpenArrays = 100

// writeBufferMax is WRITE_STATE_MAX_SIZE, the per-descriptor write-buffer
// cap that forces a flush (§4.5 "Write path" step 2, §5 "Memory bounds").
const writeBufferMax int64 = 1 << 30

// writeBuffer accumulates cells for one open write/append descriptor
// until it is flushed into a new fragment.
type writeBuffer struct {
	cells     []*Cell
	bytes     int64
	allSorted bool // true until a CellWrite (unsorted) call forces a sort at flush
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{allSorted: true}
}

func (wb *writeBuffer) add(c *Cell, trustedSorted bool) {
	wb.cells = append(wb.cells, c)
	wb.bytes += int64(len(c.Payload)) + 8*int64(len(c.Coords))
	if !trustedSorted {
		wb.allSorted = false
	}
}

// openArray is one live descriptor table entry (§3 "ArrayDescriptor").
type openArray struct {
	workspaceRoot string
	group         string
	name          string
	dir           string
	mode          Mode
	schema        *ArraySchema
	buf           *writeBuffer
	tree          *FragmentTree
	err           error // set on ErrConsolidation; descriptor is closed-with-error
}

var (
	descMu    sync.Mutex
	descTable [MaxOpenArrays]*openArray
)

// CreateArray validates schema and writes it to workspace/group/name's
// array_schema bookkeeping file, creating the array directory (§4.5).
// It must run before the array can be opened in any mode.
func CreateArray(workspaceRoot, group string, schema *ArraySchema) error {
	dir, err := ArrayPath(workspaceRoot, group, schema.ArrayName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newErr(ErrIO, "creating array directory", err)
	}
	data, err := schema.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(schemaPath(dir), data, 0o644); err != nil {
		return newErr(ErrIO, "writing array_schema", err)
	}
	if err := writeFragmentTree(dir, newFragmentTree()); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"array": schema.ArrayName}).Info("array created")
	return nil
}

// Open allocates the lowest free descriptor slot, loads the schema and
// fragment tree, and (in write/append mode) an empty write buffer
// (§4.5 "Array descriptor table").
func Open(workspaceRoot, group, name string, mode Mode) (int, error) {
	dir, err := ArrayPath(workspaceRoot, group, name)
	if err != nil {
		return -1, err
	}

	data, err := os.ReadFile(schemaPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return -1, newErr(ErrSchema, "array_schema missing; call CreateArray first", err)
		}
		return -1, newErr(ErrIO, "reading array_schema", err)
	}
	schema, err := UnmarshalSchemaBinary(data)
	if err != nil {
		return -1, newErr(ErrSchema, "array_schema corrupt", err)
	}

	tree, err := readFragmentTree(dir)
	if err != nil {
		return -1, err
	}
	tree = gcHalfWrittenFragments(dir, tree)

	descMu.Lock()
	defer descMu.Unlock()

	slot := -1
	for i, e := range descTable {
		if e == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, newErr(ErrState, "too many open arrays: MAX_OPEN_ARRAYS reached", nil)
	}

	oa := &openArray{
		workspaceRoot: workspaceRoot,
		group:         group,
		name:          name,
		dir:           dir,
		mode:          mode,
		schema:        schema,
		tree:          tree,
	}
	if mode == ModeWrite || mode == ModeAppend {
		oa.buf = newWriteBuffer()
	}
	descTable[slot] = oa

	log.WithFields(logrus.Fields{"array": name}).Info("array opened")
	return slot, nil
}

// gcHalfWrittenFragments drops any fragment directory listed in the tree
// whose tile_ids.bkp is missing or unreadable - the resolver for a flush
// that crashed mid-write (§4.5 "Failure semantics").
func gcHalfWrittenFragments(dir string, tree *FragmentTree) *FragmentTree {
	clean := newFragmentTree()
	for level, names := range tree.Levels {
		for _, n := range names {
			if _, err := OpenFragmentMeta(filepath.Join(dir, n)); err != nil {
				log.WithFields(logrus.Fields{"fragment": n}).Warn("ignoring half-written fragment")
				continue
			}
			clean.Levels[level] = append(clean.Levels[level], n)
		}
	}
	return clean
}

func lookup(ad int) (*openArray, error) {
	if ad < 0 || ad >= MaxOpenArrays {
		return nil, newErr(ErrInvalidArgument, "array descriptor out of range", nil)
	}
	descMu.Lock()
	oa := descTable[ad]
	descMu.Unlock()
	if oa == nil {
		return nil, newErr(ErrState, "array descriptor not open", nil)
	}
	if oa.err != nil {
		return nil, oa.err
	}
	return oa, nil
}

// Close flushes any pending write buffer and frees ad's slot. Closing an
// already-closed descriptor is a no-op (§4.5 "close is idempotent").
func Close(ad int) error {
	if ad < 0 || ad >= MaxOpenArrays {
		return newErr(ErrInvalidArgument, "array descriptor out of range", nil)
	}
	descMu.Lock()
	oa := descTable[ad]
	descMu.Unlock()
	if oa == nil {
		return nil
	}

	var flushErr error
	if oa.buf != nil && len(oa.buf.cells) > 0 {
		flushErr = Flush(ad)
	}

	descMu.Lock()
	descTable[ad] = nil
	descMu.Unlock()

	log.WithFields(logrus.Fields{"array": oa.name}).Info("array closed")
	return flushErr
}

// cellWrite is the shared body for CellWrite/CellWriteSorted.
func cellWrite[T Numeric](ad int, coords []T, attrIDs []int, payload []byte, trustedSorted bool) error {
	oa, err := lookup(ad)
	if err != nil {
		return err
	}
	if oa.mode != ModeWrite && oa.mode != ModeAppend {
		return newErr(ErrState, "cell_write on a read-mode descriptor", nil)
	}
	if err := checkCoordsType[T](oa.schema.CoordsType); err != nil {
		return err
	}
	if len(coords) != oa.schema.DimNum() {
		return newErr(ErrInvalidArgument, "coordinate count does not match dim_num", nil)
	}

	fcoords := make([]float64, len(coords))
	for i, c := range coords {
		fcoords[i] = float64(c)
	}

	if oa.buf.bytes+int64(len(payload))+8*int64(len(coords)) > writeBufferMax {
		if err := Flush(ad); err != nil {
			return err
		}
	}

	oa.buf.add(&Cell{Schema: oa.schema, AttrIDs: attrIDs, Coords: fcoords, Payload: append([]byte(nil), payload...)}, trustedSorted)
	return nil
}

// checkCoordsType reports an InvalidArgument error (the spec's "WrongType"
// failure, folded into the closed ErrKind sum per errors.go) when T does
// not match the schema's coordinate type.
func checkCoordsType[T Numeric](ct CoordsType) error {
	var zero T
	switch any(zero).(type) {
	case int32:
		if ct != CoordsInt32 {
			return newErr(ErrInvalidArgument, "coordinate type does not match schema coords_type", nil)
		}
	case int64:
		if ct != CoordsInt64 {
			return newErr(ErrInvalidArgument, "coordinate type does not match schema coords_type", nil)
		}
	case float32:
		if ct != CoordsFloat32 {
			return newErr(ErrInvalidArgument, "coordinate type does not match schema coords_type", nil)
		}
	case float64:
		if ct != CoordsFloat64 {
			return newErr(ErrInvalidArgument, "coordinate type does not match schema coords_type", nil)
		}
	}
	return nil
}

// CellWrite buffers one cell for later, sorted write: the write buffer is
// sorted by the schema's cell order at flush time (§4.5 "Write path" step
// 1, "the former buffers cells... sorted on the global cell order via the
// schema comparator at flush time").
func CellWrite[T Numeric](ad int, coords []T, attrIDs []int, payload []byte) error {
	return cellWrite(ad, coords, attrIDs, payload, false)
}

// CellWriteSorted buffers one cell trusting the caller's claim that
// successive calls already arrive in the schema's cell order; the buffer
// is appended directly at flush with no re-sort (§4.5 "the latter trusts
// the caller and appends directly").
func CellWriteSorted[T Numeric](ad int, coords []T, attrIDs []int, payload []byte) error {
	return cellWrite(ad, coords, attrIDs, payload, true)
}

// Flush forces the pending write buffer into a new fragment, appends it
// to the fragment tree at level 0, and triggers consolidation (§4.5
// "Write path" steps 2-3).
func Flush(ad int) error {
	oa, err := lookup(ad)
	if err != nil {
		return err
	}
	if oa.buf == nil || len(oa.buf.cells) == 0 {
		return nil
	}

	cells := oa.buf.cells
	if !oa.buf.allSorted {
		var sortErr error
		sort.SliceStable(cells, func(i, j int) bool {
			less, err := oa.schema.Precedes(cells[i].Coords, cells[j].Coords)
			if err != nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return sortErr
		}
	}

	name, err := nextFragmentName(oa.dir)
	if err != nil {
		return err
	}
	attrIDs := oa.schema.AttributeIDsAll()
	if _, err := WriteFragment(filepath.Join(oa.dir, name), oa.schema, attrIDs, cells); err != nil {
		return err
	}

	oa.tree.Levels[0] = append(oa.tree.Levels[0], name)
	oa.buf = newWriteBuffer()

	if err := consolidateCascade(oa); err != nil {
		oa.err = err
		return err
	}

	return writeFragmentTree(oa.dir, oa.tree)
}

// consolidateCascade merges complete levels upward while the fragment
// tree satisfies the consolidation_step trigger (§4.5 "Consolidation").
func consolidateCascade(oa *openArray) error {
	level := 0
	step := int(oa.schema.ConsolidationStep)
	for {
		names := oa.tree.Levels[level]
		if len(names) < step {
			return nil
		}
		batch := sortFragmentNames(names[:step])
		rest := names[step:]

		merged, err := consolidateFragments(oa, batch)
		if err != nil {
			return newErr(ErrConsolidation, "merge produced inconsistent tile bookkeeping", err)
		}

		for _, n := range batch {
			if err := os.RemoveAll(filepath.Join(oa.dir, n)); err != nil {
				return newErr(ErrConsolidation, "removing consolidated fragment inputs", err)
			}
		}

		oa.tree.Levels[level] = rest
		oa.tree.Levels[level+1] = append(oa.tree.Levels[level+1], merged)

		log.WithFields(logrus.Fields{"array": oa.name, "level": level}).Info("consolidation cascade")
		level++
	}
}

// consolidateFragments merges the named fragments (oldest to newest) of
// oa's array directory into one new fragment, via collection.go's
// last-writer-wins sort-merge (§4.5 "Consolidation use").
func consolidateFragments(oa *openArray, namesOldestFirst []string) (string, error) {
	attrIDs := oa.schema.AttributeIDsAll()
	sources := make([]CellSource, len(namesOldestFirst))
	closers := make([]*fragmentCellSource, len(namesOldestFirst))
	for i, n := range namesOldestFirst {
		fs, err := openFragmentCellSource(filepath.Join(oa.dir, n), oa.schema, attrIDs)
		if err != nil {
			for _, c := range closers[:i] {
				c.Close()
			}
			return "", err
		}
		sources[i] = fs
		closers[i] = fs
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	merged, err := ConsolidateMerge(oa.schema, sources)
	if err != nil {
		return "", err
	}

	var cells []*Cell
	for {
		c := &Cell{Schema: oa.schema}
		ok, err := merged.Next(c)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		cells = append(cells, c)
	}

	name, err := nextFragmentName(oa.dir)
	if err != nil {
		return "", err
	}
	if len(cells) == 0 {
		// Every input fragment was empty (tombstones are kept by the
		// merge, so only empty inputs give no cells); still materialize
		// an empty fragment so the
		// tree's bookkeeping stays consistent with its level counts.
		if _, err := WriteFragment(filepath.Join(oa.dir, name), oa.schema, attrIDs, nil); err != nil {
			return "", err
		}
		return name, nil
	}
	if _, err := WriteFragment(filepath.Join(oa.dir, name), oa.schema, attrIDs, cells); err != nil {
		return "", err
	}
	return name, nil
}

// FragmentTree is the consolidation-generation bookkeeping persisted at
// fragment_tree.bkp: the fragments present at each level (§4.5). The
// spec's "(level, fragment_count) pairs" are derivable from len() of
// each level's name list, which this representation keeps in sync by
// construction.
type FragmentTree struct {
	Levels map[int][]string
}

func newFragmentTree() *FragmentTree {
	return &FragmentTree{Levels: make(map[int][]string)}
}

// LevelCounts returns the (level, fragment_count) pairs in ascending
// level order, matching §4.5's described on-disk shape.
func (t *FragmentTree) LevelCounts() []struct {
	Level int
	Count int
} {
	levels := lo.Keys(t.Levels)
	sort.Ints(levels)
	out := make([]struct {
		Level int
		Count int
	}, len(levels))
	for i, l := range levels {
		out[i] = struct {
			Level int
			Count int
		}{Level: l, Count: len(t.Levels[l])}
	}
	return out
}

func writeFragmentTree(dir string, tree *FragmentTree) error {
	levels := lo.Keys(tree.Levels)
	sort.Ints(levels)

	var lines []byte
	for _, l := range levels {
		for _, n := range tree.Levels[l] {
			lines = append(lines, []byte(levelLine(l, n))...)
		}
	}
	if err := os.WriteFile(fragmentTreePath(dir), lines, 0o644); err != nil {
		return newErr(ErrIO, "writing fragment_tree.bkp", err)
	}
	return nil
}

func levelLine(level int, fragment string) string {
	return itoa(level) + "," + fragment + "\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func readFragmentTree(dir string) (*FragmentTree, error) {
	data, err := os.ReadFile(fragmentTreePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return newFragmentTree(), nil
		}
		return nil, newErr(ErrIO, "reading fragment_tree.bkp", err)
	}
	tree := newFragmentTree()
	lineStart := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > lineStart {
				line := string(data[lineStart:i])
				comma := indexByte(line, ',')
				if comma < 0 {
					return nil, newErr(ErrIO, "corrupt fragment_tree.bkp line", nil)
				}
				level := atoi(line[:comma])
				name := line[comma+1:]
				tree.Levels[level] = append(tree.Levels[level], name)
			}
			lineStart = i + 1
		}
	}
	return tree, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func atoi(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// ForceConsolidate merges every fragment currently visible on an open
// write/append descriptor into a single new fragment at the highest
// populated level plus one, bypassing the consolidation_step trigger -
// the administrative counterpart of the automatic cascade in Flush,
// exposed for cmd/tdbctl's `consolidate` subcommand.
func ForceConsolidate(ad int) error {
	oa, err := lookup(ad)
	if err != nil {
		return err
	}
	if oa.buf != nil && len(oa.buf.cells) > 0 {
		if err := Flush(ad); err != nil {
			return err
		}
	}

	levelCounts := oa.tree.LevelCounts()
	var all []string
	top := 0
	for _, lc := range levelCounts {
		all = append(all, oa.tree.Levels[lc.Level]...)
		if lc.Level > top {
			top = lc.Level
		}
	}
	// Fragment names increase with creation, and a merged fragment is named
	// after its inputs, so name order across levels is oldest first.
	all = sortFragmentNames(all)
	if len(all) < 2 {
		return nil
	}
	for _, lc := range levelCounts {
		oa.tree.Levels[lc.Level] = nil
	}

	merged, err := consolidateFragments(oa, all)
	if err != nil {
		oa.err = newErr(ErrConsolidation, "force consolidation failed", err)
		return oa.err
	}
	for _, n := range all {
		if err := os.RemoveAll(filepath.Join(oa.dir, n)); err != nil {
			return newErr(ErrConsolidation, "removing consolidated fragment inputs", err)
		}
	}
	oa.tree.Levels[top+1] = append(oa.tree.Levels[top+1], merged)

	return writeFragmentTree(oa.dir, oa.tree)
}

// FragmentNames returns the array's currently visible fragments, oldest
// first across all levels (by name, which increases with creation), for
// callers (iterator.go, json.go) that list or open every fragment.
func FragmentNames(ad int) ([]string, error) {
	oa, err := lookup(ad)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, lc := range oa.tree.LevelCounts() {
		all = append(all, oa.tree.Levels[lc.Level]...)
	}
	return sortFragmentNames(all), nil
}

// Schema returns the schema of an open descriptor.
func Schema(ad int) (*ArraySchema, error) {
	oa, err := lookup(ad)
	if err != nil {
		return nil, err
	}
	return oa.schema, nil
}

// ArrayDir returns the on-disk directory backing an open descriptor.
func ArrayDir(ad int) (string, error) {
	oa, err := lookup(ad)
	if err != nil {
		return "", err
	}
	return oa.dir, nil
}
