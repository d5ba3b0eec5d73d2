// Package store implements the central dataset state container: columns and
// their typed data arrays, the ordered filter list, the derived row masks
// (filtered, selected, highlighted), focus bookkeeping, the lazy cell cache,
// and the memoized sort mapping. One store holds the complete client-visible
// state of one dataset.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/facet-org/facet/pkg/cellcache"
	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/filter"
	"github.com/facet-org/facet/pkg/problem"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/sortindex"
)

// View selects which row index list a consumer iterates over.
type View string

const (
	// ViewFull iterates over every row.
	ViewFull View = "full"

	// ViewFiltered iterates over rows passing the enabled filters.
	ViewFiltered View = "filtered"

	// ViewSelected iterates over explicitly selected rows.
	ViewSelected View = "selected"
)

// ParseView maps a view name onto a View. The empty string selects ViewFull.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewFull, ViewFiltered, ViewSelected:
		return View(s), nil
	case "":
		return ViewFull, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// Sentinel errors returned by store operations.
var (
	ErrFilterNotFound = errors.New("filter not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrRowOutOfRange  = errors.New("row index out of range")
)

// Source provides the dataset content. Refresh reopens it to observe remote
// changes.
type Source interface {
	Open(ctx context.Context) (core.DatasetReader, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (core.DatasetReader, error)

// Open implements Source.
func (f SourceFunc) Open(ctx context.Context) (core.DatasetReader, error) {
	return f(ctx)
}

// Options configures dataset loading and store behavior.
type Options struct {
	// Logger receives reconciliation and degradation notices. Nil selects
	// a no-op logger.
	Logger *zap.Logger

	// CacheCapacity bounds the lazy cell cache. Zero selects the cache
	// default.
	CacheCapacity int

	// Workers bounds parallel column materialization during load. Zero
	// selects 4.
	Workers int

	// LazyStrings keeps string columns out of memory and serves them
	// through the cell cache instead of materializing them at load time.
	LazyStrings bool

	// Fetcher serves lazy cell values for stores assembled with New.
	// Load supersedes it with a fetcher over the loaded data.
	Fetcher core.CellFetcher
}

// Store is the dataset state container. It is a single-writer, many-reader
// store: every mutation is applied atomically under the write lock, so
// readers never observe a mask out of sync with its derived index list.
type Store struct {
	mu sync.RWMutex

	logger *zap.Logger
	source Source
	opts   Options

	columns  []schema.Column
	colIndex map[string]int
	data     map[string]coldata.Data
	length   int

	generation int64

	filterOrder []string
	filters     map[string]filter.Filter

	filtered        []bool
	filteredIndices []int
	selected        []bool
	selectedIndices []int
	highlighted     []bool

	focusedRow int

	cache   *cellcache.Cache
	fetcher core.CellFetcher
	release func()

	// revision tracks changes to the view index lists (filters and
	// selection) for sort memoization. Highlighting does not affect it.
	revision int64
	sortMemo *sortMemo
}

type sortMemo struct {
	view       View
	keys       []sortindex.Key
	generation int64
	revision   int64
	mapping    *sortindex.Mapping
}

// dataView is the unlocked read surface handed to filters and the sorter
// while the store lock is already held.
type dataView map[string]coldata.Data

func (v dataView) Data(key string) (coldata.Data, bool) {
	d, ok := v[key]
	return d, ok
}

// New assembles a store from prepared columns and column data. Every column
// must have data of one common length. Most callers load datasets through
// Load; New serves in-memory datasets and tests.
func New(columns []schema.Column, data map[string]coldata.Data, opts Options) (*Store, error) {
	length := -1
	for _, col := range columns {
		d, ok := data[col.Key]
		if !ok {
			return nil, fmt.Errorf("no data for column %q", col.Key)
		}
		if length == -1 {
			length = d.Len()
		} else if d.Len() != length {
			return nil, fmt.Errorf("column %q has length %d, expected %d", col.Key, d.Len(), length)
		}
	}
	if length == -1 {
		length = 0
	}

	s := newStore(columns, data, length, nil, opts)
	s.fetcher = opts.Fetcher
	return s, nil
}

func newStore(columns []schema.Column, data map[string]coldata.Data, length int, source Source, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		logger:     logger,
		source:     source,
		opts:       opts,
		columns:    columns,
		colIndex:   indexColumns(columns),
		data:       data,
		length:     length,
		generation: 1,
		filters:    make(map[string]filter.Filter),
		focusedRow: -1,
	}
	s.cache = cellcache.New(storeFetcher{s}, opts.CacheCapacity)
	s.selected = make([]bool, length)
	s.highlighted = make([]bool, length)
	s.recomputeFilteredLocked()
	return s
}

func indexColumns(columns []schema.Column) map[string]int {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		index[col.Key] = i
	}
	return index
}

// Close releases resources retained for lazy cell access.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		s.release()
		s.release = nil
	}
	s.fetcher = nil
	return nil
}

// Length returns the number of rows.
func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

// Generation returns the dataset content version. It increases on every
// Refresh and invalidates cached cell values fetched under older versions.
func (s *Store) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Columns returns the column list in schema order.
func (s *Store) Columns() []schema.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.Column(nil), s.columns...)
}

// Column returns one column by key.
func (s *Store) Column(key string) (schema.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.colIndex[key]
	if !ok {
		return schema.Column{}, false
	}
	return s.columns[i], true
}

// Data returns the column data for a key. The returned data is read-only.
func (s *Store) Data(key string) (coldata.Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[key]
	return d, ok
}

// AddFilter appends the filter to the filter list and recomputes the
// filtered mask.
func (s *Store) AddFilter(f filter.Filter) error {
	if f == nil {
		return errors.New("cannot add a nil filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.filters[f.ID()]; exists {
		return fmt.Errorf("filter %s already present", f.ID())
	}
	s.warnDegraded(f)
	s.filterOrder = append(s.filterOrder, f.ID())
	s.filters[f.ID()] = f
	s.recomputeFilteredLocked()
	return nil
}

// RemoveFilter removes a filter by ID and recomputes the filtered mask.
func (s *Store) RemoveFilter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filters[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	delete(s.filters, id)
	for i, existing := range s.filterOrder {
		if existing == id {
			s.filterOrder = append(s.filterOrder[:i], s.filterOrder[i+1:]...)
			break
		}
	}
	s.recomputeFilteredLocked()
	return nil
}

// ReplaceFilter swaps the filter with the given ID for a new one, keeping
// its position in the filter list.
func (s *Store) ReplaceFilter(id string, f filter.Filter) error {
	if f == nil {
		return errors.New("cannot replace with a nil filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filters[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	if f.ID() != id {
		if _, clash := s.filters[f.ID()]; clash {
			return fmt.Errorf("filter %s already present", f.ID())
		}
	}
	s.warnDegraded(f)
	delete(s.filters, id)
	s.filters[f.ID()] = f
	for i, existing := range s.filterOrder {
		if existing == id {
			s.filterOrder[i] = f.ID()
			break
		}
	}
	s.recomputeFilteredLocked()
	return nil
}

// SetFilterEnabled toggles a filter's participation in combination.
func (s *Store) SetFilterEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	if f.Enabled() != enabled {
		f.SetEnabled(enabled)
		s.recomputeFilteredLocked()
	}
	return nil
}

// SetFilterInverted toggles a filter's inversion flag.
func (s *Store) SetFilterInverted(id string, inverted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	if f.Inverted() != inverted {
		f.SetInverted(inverted)
		s.recomputeFilteredLocked()
	}
	return nil
}

// Filters returns the filters in list order. Mutating a returned filter
// directly does not recompute the masks; use the store's filter operations.
func (s *Store) Filters() []filter.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]filter.Filter, 0, len(s.filterOrder))
	for _, id := range s.filterOrder {
		out = append(out, s.filters[id])
	}
	return out
}

// Filter returns one filter by ID.
func (s *Store) Filter(id string) (filter.Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[id]
	return f, ok
}

// FreezeSelection captures the current selection as a durable named set
// filter and adds it to the filter list.
func (s *Store) FreezeSelection(name string) (filter.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := filter.SetFilterFromMask(s.selected, name)
	s.filterOrder = append(s.filterOrder, f.ID())
	s.filters[f.ID()] = f
	s.recomputeFilteredLocked()
	return f, nil
}

func (s *Store) warnDegraded(f filter.Filter) {
	pf, ok := f.(*filter.PredicateFilter)
	if !ok {
		return
	}
	if warn := pf.Warning(); warn != nil {
		s.logger.Warn("filter pattern degraded to literal matching",
			zap.String("filter_id", f.ID()),
			zap.String("column", pf.Column()),
			zap.Error(warn))
	}
}

// recomputeFilteredLocked re-runs the combination rule over all rows: a row
// is filtered-in iff every enabled filter, after its own inversion, passes.
// An empty filter list passes every row.
func (s *Store) recomputeFilteredLocked() {
	enabled := make([]filter.Filter, 0, len(s.filterOrder))
	for _, id := range s.filterOrder {
		if f := s.filters[id]; f.Enabled() {
			enabled = append(enabled, f)
		}
	}

	view := dataView(s.data)
	mask := make([]bool, s.length)
	count := 0
	for row := 0; row < s.length; row++ {
		pass := true
		for _, f := range enabled {
			verdict := f.Apply(row, view)
			if f.Inverted() {
				verdict = !verdict
			}
			if !verdict {
				pass = false
				break
			}
		}
		mask[row] = pass
		if pass {
			count++
		}
	}

	indices := make([]int, 0, count)
	for row, in := range mask {
		if in {
			indices = append(indices, row)
		}
	}
	s.filtered = mask
	s.filteredIndices = indices
	s.revision++
}

// SelectRows replaces the selection with the given row indices.
func (s *Store) SelectRows(indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setSelectionLocked(indices)
}

// UpdateSelection applies an update function to the previous selection and
// installs its result. The function receives a copy of the sorted selected
// indices, so callers can compose toggle, union, difference, and
// intersection updates.
func (s *Store) UpdateSelection(update func(prev []int) []int) error {
	if update == nil {
		return errors.New("cannot apply a nil selection update")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := append([]int(nil), s.selectedIndices...)
	return s.setSelectionLocked(update(prev))
}

func (s *Store) setSelectionLocked(indices []int) error {
	for _, row := range indices {
		if row < 0 || row >= s.length {
			return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
		}
	}
	mask := make([]bool, s.length)
	for _, row := range indices {
		mask[row] = true
	}
	selected := make([]int, 0, len(indices))
	for row, in := range mask {
		if in {
			selected = append(selected, row)
		}
	}
	s.selected = mask
	s.selectedIndices = selected
	s.revision++
	return nil
}

// HighlightRowAt marks a row as highlighted. With exclusive set, every other
// highlight is cleared first (single-row hover); without it, highlights
// accumulate (filter-preview hover).
func (s *Store) HighlightRowAt(row int, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 || row >= s.length {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	if exclusive {
		for i := range s.highlighted {
			s.highlighted[i] = false
		}
	}
	s.highlighted[row] = true
	return nil
}

// SetHighlightedRows replaces the highlight mask wholesale.
func (s *Store) SetHighlightedRows(mask []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(mask) != s.length {
		return fmt.Errorf("highlight mask has length %d, expected %d", len(mask), s.length)
	}
	copy(s.highlighted, mask)
	return nil
}

// DehighlightAll clears every highlight.
func (s *Store) DehighlightAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.highlighted {
		s.highlighted[i] = false
	}
}

// IsRowHighlighted reports whether a row is highlighted.
func (s *Store) IsRowHighlighted(row int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return row >= 0 && row < s.length && s.highlighted[row]
}

// HighlightedMask returns a copy of the highlight mask.
func (s *Store) HighlightedMask() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.highlighted...)
}

// FocusRow records the last focused row for scroll-sync consumers.
func (s *Store) FocusRow(row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 || row >= s.length {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	s.focusedRow = row
	return nil
}

// ClearFocus forgets the focused row.
func (s *Store) ClearFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusedRow = -1
}

// FocusedRow returns the focused row, if any.
func (s *Store) FocusedRow() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.focusedRow < 0 {
		return 0, false
	}
	return s.focusedRow, true
}

// FilteredMask returns a copy of the filtered mask.
func (s *Store) FilteredMask() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.filtered...)
}

// SelectedMask returns a copy of the selection mask.
func (s *Store) SelectedMask() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.selected...)
}

// IsRowFiltered reports whether a row passes the enabled filters.
func (s *Store) IsRowFiltered(row int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return row >= 0 && row < s.length && s.filtered[row]
}

// IsRowSelected reports whether a row is selected.
func (s *Store) IsRowSelected(row int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return row >= 0 && row < s.length && s.selected[row]
}

// FilteredCount returns the number of rows passing the enabled filters.
func (s *Store) FilteredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filteredIndices)
}

// SelectedCount returns the number of selected rows.
func (s *Store) SelectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selectedIndices)
}

// Indices returns the row index list of a view, sorted ascending.
func (s *Store) Indices(view View) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indicesLocked(view)
}

func (s *Store) indicesLocked(view View) []int {
	switch view {
	case ViewFiltered:
		return append([]int(nil), s.filteredIndices...)
	case ViewSelected:
		return append([]int(nil), s.selectedIndices...)
	default:
		indices := make([]int, s.length)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
}

// CellValue returns one cell value. Eager columns answer from memory; lazy
// columns resolve through the generation-keyed cell cache. The encoding
// selects an alternate representation for lazy values and is ignored for
// eager columns.
func (s *Store) CellValue(ctx context.Context, column string, row int, encoding string) (any, error) {
	s.mu.RLock()
	i, ok := s.colIndex[column]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}
	if row < 0 || row >= s.length {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	col := s.columns[i]
	d := s.data[column]
	generation := s.generation
	cache := s.cache
	s.mu.RUnlock()

	if !col.Lazy() || d.State(row) != coldata.Unresolved {
		return d.Value(row), nil
	}
	return cache.Get(ctx, column, row, generation, encoding)
}

// Sorting returns the sort mapping for a view under the given keys. The
// mapping is memoized and recomputed only when the view's index list, the
// key list, or the dataset generation changes.
func (s *Store) Sorting(view View, keys []sortindex.Key) (*sortindex.Mapping, error) {
	view, err := ParseView(string(view))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.sortMemo; m != nil &&
		m.view == view &&
		m.generation == s.generation &&
		m.revision == s.revision &&
		sortKeysEqual(m.keys, keys) {
		return m.mapping, nil
	}

	mapping := sortindex.Build(dataView(s.data), s.length, s.indicesLocked(view), keys)
	s.sortMemo = &sortMemo{
		view:       view,
		keys:       append([]sortindex.Key(nil), keys...),
		generation: s.generation,
		revision:   s.revision,
		mapping:    mapping,
	}
	return mapping, nil
}

func sortKeysEqual(a, b []sortindex.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Refresh re-reads the dataset from its source and bumps the generation.
// Filters, selection, highlights, and focus survive where the new schema and
// length allow: filters referencing dropped columns are pruned, selected and
// highlighted rows beyond the new length are dropped, and an out-of-range
// focus is cleared.
func (s *Store) Refresh(ctx context.Context) error {
	if s.source == nil {
		return errors.New("store has no dataset source to refresh from")
	}

	ds, err := buildFromSource(ctx, s.source, s.opts)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldRelease := s.release

	s.columns = ds.columns
	s.colIndex = ds.colIndex
	s.data = ds.data
	s.length = ds.length
	s.fetcher = ds.fetcher
	s.release = ds.release
	s.generation++

	var dropped []string
	kept := make([]string, 0, len(s.filterOrder))
	for _, id := range s.filterOrder {
		if pf, ok := s.filters[id].(*filter.PredicateFilter); ok {
			if _, exists := s.colIndex[pf.Column()]; !exists {
				delete(s.filters, id)
				dropped = append(dropped, pf.Column())
				continue
			}
		}
		kept = append(kept, id)
	}
	s.filterOrder = kept
	if len(dropped) > 0 {
		s.logger.Warn("dropped filters referencing columns missing after refresh",
			zap.Strings("columns", dropped))
	}

	surviving := make([]int, 0, len(s.selectedIndices))
	for _, row := range s.selectedIndices {
		if row < s.length {
			surviving = append(surviving, row)
		}
	}
	oldHighlights := s.highlighted
	s.highlighted = make([]bool, s.length)
	copy(s.highlighted, oldHighlights)
	if s.focusedRow >= s.length {
		s.focusedRow = -1
	}

	if err := s.setSelectionLocked(surviving); err != nil {
		return err
	}
	s.recomputeFilteredLocked()
	s.sortMemo = nil

	if oldRelease != nil {
		oldRelease()
	}
	return nil
}

// storeFetcher routes cache fetches to the store's current fetcher, so a
// refresh can swap the underlying data source without rebuilding the cache.
type storeFetcher struct {
	s *Store
}

func (f storeFetcher) FetchCell(ctx context.Context, column string, row int, generation int64, encoding string) (any, error) {
	f.s.mu.RLock()
	fetcher := f.s.fetcher
	f.s.mu.RUnlock()
	if fetcher == nil {
		return nil, problem.New(problem.TypeUnavailable, "no cell source available", "")
	}
	return fetcher.FetchCell(ctx, column, row, generation, encoding)
}
