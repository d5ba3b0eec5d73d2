package api

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/facet-org/facet/pkg/compute"
	"github.com/facet-org/facet/pkg/core"
	"github.com/facet-org/facet/pkg/filter"
	"github.com/facet-org/facet/pkg/problem"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/sortindex"
	"github.com/facet-org/facet/pkg/stats"
	"github.com/facet-org/facet/pkg/store"
	"github.com/facet-org/facet/pkg/writers"
)

// -----------------------------
// Problem Rendering
// -----------------------------

func statusOf(p *problem.Problem) int {
	switch p.Type {
	case problem.TypeNotFound:
		return fiber.StatusNotFound
	case problem.TypeInvalid:
		return fiber.StatusBadRequest
	case problem.TypeUnavailable:
		return fiber.StatusServiceUnavailable
	case problem.TypeFetch:
		return fiber.StatusBadGateway
	case problem.TypeTimeout, problem.TypeCancelled:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// normalize maps store sentinels onto problem types before the generic
// conversion.
func normalize(err error) *problem.Problem {
	switch {
	case errors.Is(err, store.ErrColumnNotFound):
		return problem.New(problem.TypeNotFound, "column not found", err.Error())
	case errors.Is(err, store.ErrFilterNotFound):
		return problem.New(problem.TypeNotFound, "filter not found", err.Error())
	case errors.Is(err, store.ErrRowOutOfRange):
		return problem.New(problem.TypeInvalid, "row out of range", err.Error())
	default:
		return problem.From(err)
	}
}

func renderProblem(c *fiber.Ctx, err error) error {
	p := normalize(err)
	return c.Status(statusOf(p)).JSON(p)
}

func badRequest(c *fiber.Ctx, format string, args ...any) error {
	return renderProblem(c, problem.Newf(problem.TypeInvalid, "invalid request", format, args...))
}

// sanitizeValue strips NaN and infinities, which have no JSON encoding.
func sanitizeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	}
	return v
}

// -----------------------------
// Dataset & Columns
// -----------------------------

type columnPayload struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Order       int      `json:"order"`
	Index       int      `json:"index"`
	Editable    bool     `json:"editable"`
	Optional    bool     `json:"optional"`
	Hidden      bool     `json:"hidden"`
	Internal    bool     `json:"isInternal"`
	Lazy        bool     `json:"lazy"`
	Length      int      `json:"length,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func columnToPayload(col schema.Column) columnPayload {
	p := columnPayload{
		Key:         col.Key,
		Name:        col.Name,
		Kind:        col.Kind().String(),
		Order:       col.Order,
		Index:       col.Index,
		Editable:    col.Editable,
		Optional:    col.Optional,
		Hidden:      col.Hidden,
		Internal:    col.Internal,
		Lazy:        col.Lazy(),
		Length:      col.Type.Length,
		Description: col.Description,
		Tags:        col.Tags,
	}
	if col.Type.Categories != nil {
		p.Categories = col.Type.Categories.Labels()
	}
	return p
}

func (s *Server) columnPayloads() []columnPayload {
	columns := s.store.Columns()
	payload := make([]columnPayload, 0, len(columns))
	for _, col := range columns {
		payload = append(payload, columnToPayload(col))
	}
	return payload
}

func (s *Server) handleDataset(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"source":        s.source,
		"generation":    s.store.Generation(),
		"rows":          s.store.Length(),
		"filtered_rows": s.store.FilteredCount(),
		"selected_rows": s.store.SelectedCount(),
		"columns":       s.columnPayloads(),
	})
}

func (s *Server) handleColumns(c *fiber.Ctx) error {
	return c.JSON(s.columnPayloads())
}

func (s *Server) handleColumn(c *fiber.Ctx) error {
	key := c.Params("key")
	col, ok := s.store.Column(key)
	if !ok {
		return renderProblem(c, problem.Newf(problem.TypeNotFound, "column not found", "no column %q", key))
	}
	return c.JSON(columnToPayload(col))
}

// -----------------------------
// Rows & Cells
// -----------------------------

func (s *Server) handleRows(c *fiber.Ctx) error {
	view, err := store.ParseView(c.Query("view"))
	if err != nil {
		return badRequest(c, "%v", err)
	}
	keys, err := sortindex.ParseKeys(c.Query("sort"))
	if err != nil {
		return badRequest(c, "%v", err)
	}
	mapping, err := s.store.Sorting(view, keys)
	if err != nil {
		return renderProblem(c, err)
	}

	total := mapping.Len()
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return badRequest(c, "offset must not be negative")
	}
	limit := c.QueryInt("limit", -1)

	if offset > total {
		offset = total
	}
	end := total
	if limit >= 0 && offset+limit < total {
		end = offset + limit
	}

	return c.JSON(fiber.Map{
		"view":    view,
		"total":   total,
		"offset":  offset,
		"indices": mapping.Order()[offset:end],
	})
}

func (s *Server) handleCell(c *fiber.Ctx) error {
	column := c.Params("column")
	row, err := c.ParamsInt("row")
	if err != nil {
		return badRequest(c, "row must be an integer")
	}
	value, err := s.store.CellValue(c.Context(), column, row, c.Query("encoding"))
	if err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(fiber.Map{
		"column": column,
		"row":    row,
		"value":  sanitizeValue(value),
	})
}

// -----------------------------
// Filters
// -----------------------------

func (s *Server) handleListFilters(c *fiber.Ctx) error {
	specs := make([]filter.Spec, 0)
	for _, f := range s.store.Filters() {
		sp, err := filter.ToSpec(f)
		if err != nil {
			return renderProblem(c, err)
		}
		specs = append(specs, sp)
	}
	return c.JSON(specs)
}

// resolveSpecColumn surfaces an unknown predicate column as not-found before
// the filter is built.
func (s *Server) resolveSpecColumn(c *fiber.Ctx, spec filter.Spec) error {
	if spec.Kind != filter.KindPredicate {
		return nil
	}
	if _, ok := s.store.Column(spec.Column); !ok {
		return renderProblem(c, problem.Newf(problem.TypeNotFound, "column not found", "no column %q", spec.Column))
	}
	return nil
}

func (s *Server) handleAddFilter(c *fiber.Ctx) error {
	spec := filter.NewSpec()
	if err := c.BodyParser(&spec); err != nil {
		return badRequest(c, "malformed filter payload: %v", err)
	}
	if err := s.resolveSpecColumn(c, spec); err != nil {
		return err
	}
	f, err := filter.FromSpec(spec, s.store.Column)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	if err := s.store.AddFilter(f); err != nil {
		return badRequest(c, "%v", err)
	}
	sp, err := filter.ToSpec(f)
	if err != nil {
		return renderProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sp)
}

func (s *Server) handleGetFilter(c *fiber.Ctx) error {
	id := c.Params("id")
	f, ok := s.store.Filter(id)
	if !ok {
		return renderProblem(c, fmt.Errorf("%w: %s", store.ErrFilterNotFound, id))
	}
	sp, err := filter.ToSpec(f)
	if err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(sp)
}

func (s *Server) handleReplaceFilter(c *fiber.Ctx) error {
	id := c.Params("id")
	spec := filter.NewSpec()
	if err := c.BodyParser(&spec); err != nil {
		return badRequest(c, "malformed filter payload: %v", err)
	}
	if err := s.resolveSpecColumn(c, spec); err != nil {
		return err
	}
	f, err := filter.FromSpec(spec, s.store.Column)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	if err := s.store.ReplaceFilter(id, f); err != nil {
		if errors.Is(err, store.ErrFilterNotFound) {
			return renderProblem(c, err)
		}
		return badRequest(c, "%v", err)
	}
	sp, err := filter.ToSpec(f)
	if err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(sp)
}

type filterPatch struct {
	Enabled  *bool `json:"enabled"`
	Inverted *bool `json:"inverted"`
}

func (s *Server) handlePatchFilter(c *fiber.Ctx) error {
	id := c.Params("id")
	var patch filterPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "malformed patch payload: %v", err)
	}
	if patch.Enabled == nil && patch.Inverted == nil {
		return badRequest(c, "patch must set enabled or inverted")
	}
	if patch.Enabled != nil {
		if err := s.store.SetFilterEnabled(id, *patch.Enabled); err != nil {
			return renderProblem(c, err)
		}
	}
	if patch.Inverted != nil {
		if err := s.store.SetFilterInverted(id, *patch.Inverted); err != nil {
			return renderProblem(c, err)
		}
	}
	f, ok := s.store.Filter(id)
	if !ok {
		return renderProblem(c, fmt.Errorf("%w: %s", store.ErrFilterNotFound, id))
	}
	sp, err := filter.ToSpec(f)
	if err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(sp)
}

func (s *Server) handleRemoveFilter(c *fiber.Ctx) error {
	if err := s.store.RemoveFilter(c.Params("id")); err != nil {
		return renderProblem(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type freezeRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleFreezeSelection(c *fiber.Ctx) error {
	var req freezeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "malformed payload: %v", err)
		}
	}
	f, err := s.store.FreezeSelection(req.Name)
	if err != nil {
		return renderProblem(c, err)
	}
	sp, err := filter.ToSpec(f)
	if err != nil {
		return renderProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sp)
}

// -----------------------------
// Selection
// -----------------------------

const (
	opToggle     = "toggle"
	opUnion      = "union"
	opDifference = "difference"
	opIntersect  = "intersect"
)

type selectionRequest struct {
	Op   string `json:"op,omitempty"`
	Rows []int  `json:"rows"`
}

// composeSelection combines the previous selection with the request rows
// under the given set operation.
func composeSelection(op string, prev, rows []int) []int {
	set := make(map[int]bool, len(prev))
	for _, r := range prev {
		set[r] = true
	}
	switch op {
	case opToggle:
		for _, r := range rows {
			if set[r] {
				delete(set, r)
			} else {
				set[r] = true
			}
		}
	case opUnion:
		for _, r := range rows {
			set[r] = true
		}
	case opDifference:
		for _, r := range rows {
			delete(set, r)
		}
	case opIntersect:
		keep := make(map[int]bool, len(rows))
		for _, r := range rows {
			if set[r] {
				keep[r] = true
			}
		}
		set = keep
	}
	out := make([]int, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

func validSelectionOp(op string) bool {
	switch op {
	case opToggle, opUnion, opDifference, opIntersect:
		return true
	}
	return false
}

func (s *Server) handleGetSelection(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rows": s.store.Indices(store.ViewSelected)})
}

func (s *Server) handleSetSelection(c *fiber.Ctx) error {
	var req selectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed selection payload: %v", err)
	}
	if err := s.store.SelectRows(req.Rows); err != nil {
		return renderProblem(c, err)
	}
	return s.handleGetSelection(c)
}

func (s *Server) handleUpdateSelection(c *fiber.Ctx) error {
	var req selectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed selection payload: %v", err)
	}
	if !validSelectionOp(req.Op) {
		return badRequest(c, "unknown selection op %q", req.Op)
	}
	err := s.store.UpdateSelection(func(prev []int) []int {
		return composeSelection(req.Op, prev, req.Rows)
	})
	if err != nil {
		return renderProblem(c, err)
	}
	return s.handleGetSelection(c)
}

// -----------------------------
// Highlight & Focus
// -----------------------------

type highlightRequest struct {
	Rows []int `json:"rows"`
}

func (s *Server) handleGetHighlight(c *fiber.Ctx) error {
	mask := s.store.HighlightedMask()
	rows := make([]int, 0)
	for i, on := range mask {
		if on {
			rows = append(rows, i)
		}
	}
	return c.JSON(fiber.Map{"rows": rows})
}

func (s *Server) handleSetHighlight(c *fiber.Ctx) error {
	var req highlightRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed highlight payload: %v", err)
	}
	mask := make([]bool, s.store.Length())
	for _, row := range req.Rows {
		if row < 0 || row >= len(mask) {
			return badRequest(c, "row %d is out of range", row)
		}
		mask[row] = true
	}
	if err := s.store.SetHighlightedRows(mask); err != nil {
		return renderProblem(c, err)
	}
	return s.handleGetHighlight(c)
}

func (s *Server) handleHighlightRow(c *fiber.Ctx) error {
	row, err := c.ParamsInt("row")
	if err != nil {
		return badRequest(c, "row must be an integer")
	}
	if err := s.store.HighlightRowAt(row, c.QueryBool("exclusive", false)); err != nil {
		return renderProblem(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearHighlight(c *fiber.Ctx) error {
	s.store.DehighlightAll()
	return c.SendStatus(fiber.StatusNoContent)
}

type focusRequest struct {
	Row int `json:"row"`
}

func (s *Server) handleGetFocus(c *fiber.Ctx) error {
	row, ok := s.store.FocusedRow()
	return c.JSON(fiber.Map{"row": row, "focused": ok})
}

func (s *Server) handleSetFocus(c *fiber.Ctx) error {
	var req focusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed focus payload: %v", err)
	}
	if err := s.store.FocusRow(req.Row); err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(fiber.Map{"row": req.Row, "focused": true})
}

func (s *Server) handleClearFocus(c *fiber.Ctx) error {
	s.store.ClearFocus()
	return c.SendStatus(fiber.StatusNoContent)
}

// -----------------------------
// Refresh, Export, Stats, Compute
// -----------------------------

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	if err := s.store.Refresh(c.Context()); err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(fiber.Map{
		"generation": s.store.Generation(),
		"rows":       s.store.Length(),
	})
}

type exportRequest struct {
	Path      string `json:"path"`
	Type      string `json:"type,omitempty"`
	View      string `json:"view,omitempty"`
	Sort      string `json:"sort,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed export payload: %v", err)
	}
	if req.Path == "" {
		return badRequest(c, "path is required")
	}
	view, err := store.ParseView(req.View)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	keys, err := sortindex.ParseKeys(req.Sort)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	typ := req.Type
	if typ == "" {
		typ, err = writers.TypeFromPath(req.Path)
		if err != nil {
			return badRequest(c, "%v", err)
		}
	}

	writer, err := writers.DefaultFactory.Create(core.WriterConfig{Type: typ, Path: req.Path})
	if err != nil {
		return badRequest(c, "%v", err)
	}
	if err := s.store.ExportView(c.Context(), view, keys, writer, req.BatchSize); err != nil {
		writer.Close()
		return renderProblem(c, err)
	}
	if err := writer.Close(); err != nil {
		return renderProblem(c, err)
	}

	rows := len(s.store.Indices(view))
	s.logger.Info("exported dataset view",
		zap.String("path", req.Path),
		zap.String("type", typ),
		zap.String("view", string(view)),
		zap.Int("rows", rows))
	return c.JSON(fiber.Map{
		"path": req.Path,
		"type": typ,
		"view": view,
		"rows": rows,
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(stats.Describe(s.store))
}

type computeRequest struct {
	Task    string         `json:"task"`
	Column  string         `json:"column,omitempty"`
	Indices []int          `json:"indices,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func (s *Server) handleCompute(c *fiber.Ctx) error {
	if s.compute == nil {
		return renderProblem(c, problem.New(problem.TypeUnavailable, "compute service not configured", ""))
	}
	var req computeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed compute payload: %v", err)
	}
	switch req.Task {
	case compute.TaskUMAP, compute.TaskPCA, compute.TaskGeneric:
	case "":
		return badRequest(c, "task is required")
	default:
		return badRequest(c, "unknown task %q", req.Task)
	}

	res, err := s.compute.Compute(c.Context(), req.Task, compute.Request{
		Column:     req.Column,
		Indices:    req.Indices,
		Params:     req.Params,
		Generation: s.store.Generation(),
	})
	if err != nil {
		return renderProblem(c, err)
	}
	return c.JSON(res)
}
