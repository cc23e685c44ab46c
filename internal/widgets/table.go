package widgets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notebookcore/internal/export"
	"notebookcore/internal/runtime"
	"notebookcore/internal/ui"
	"notebookcore/pkg/table"
)

// SelectionMode controls what the frontend table lets the user select.
type SelectionMode string

const (
	// SelectNone disables selection.
	SelectNone SelectionMode = "none"
	// SelectRows selects whole rows; the kernel value carries original-schema
	// rows.
	SelectRows SelectionMode = "rows"
	// SelectCells selects individual cells.
	SelectCells SelectionMode = "cells"
)

// TableValue is the frontend value of a table widget: positional selection
// against the most recently searched view, rows as stringified indices.
type TableValue struct {
	Rows  []string          `json:"rows,omitempty"`
	Cells []table.CellPoint `json:"cells,omitempty"`
}

// Selection is the kernel-side table value: the resolved rows (original
// schema, not the clamped display projection) and resolved cell points.
type Selection struct {
	Rows  []table.Row
	Cells []table.CellPoint
}

// TableConfig configures a table widget.
type TableConfig struct {
	// PageSize defaults to 10 and may never exceed table.MaxPageSize.
	PageSize int
	// MaxColumns clamps how many columns a search response carries; zero
	// means no clamp. The response still reports the true column total.
	MaxColumns int
	Selection  SelectionMode
	Label      *string
	OnChange   func(Selection)
	// Store receives download artifacts. Nil disables downloads.
	Store export.Store
}

// Table composes the generic element with a dataframe manager: searching,
// sorting, pagination and selection all resolve against the manager, while
// identity, value sync and RPC routing come from the element.
type Table struct {
	el     *ui.Element[TableValue, Selection]
	cfg    TableConfig
	source table.Manager
	// view is the manager after the last search/sort; selections resolve
	// against it, so a narrowing search can invalidate stale indices.
	view table.Manager
}

// NewTable validates the page-size bound and constructs the element with its
// search and download RPC endpoints.
func NewTable(ctx *runtime.Context, mgr table.Manager, cfg TableConfig) (*Table, error) {
	if mgr == nil {
		return nil, fmt.Errorf("widgets: table: nil manager")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 10
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("widgets: table: page size must be positive, got %d", cfg.PageSize)
	}
	if cfg.PageSize > table.MaxPageSize {
		return nil, fmt.Errorf("widgets: table: page size %d exceeds maximum %d", cfg.PageSize, table.MaxPageSize)
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectRows
	}

	t := &Table{cfg: cfg, source: mgr, view: mgr}
	el, err := ui.New(ctx, ui.Config[TableValue, Selection]{
		ComponentName: "table",
		InitialValue:  TableValue{},
		Label:         cfg.Label,
		Convert:       t.resolve,
		OnChange:      cfg.OnChange,
		Args: map[string]any{
			"page-size": cfg.PageSize,
			"selection": string(cfg.Selection),
		},
		Functions: []runtime.Function{
			{Name: "search", Handler: t.handleSearch},
			{Name: "download_as", Handler: t.handleDownload},
		},
		Owner: t,
	})
	if err != nil {
		return nil, err
	}
	t.el = el
	return t, nil
}

// ID returns the widget identity.
func (t *Table) ID() runtime.ElementID { return t.el.ID() }

// Element exposes the underlying element.
func (t *Table) Element() *ui.Element[TableValue, Selection] { return t.el }

// Manager returns the full (unsearched) source manager.
func (t *Table) Manager() table.Manager { return t.source }

// View returns the manager the last search produced.
func (t *Table) View() table.Manager { return t.view }

// Value returns the resolved selection, subject to the creating-cell guard.
func (t *Table) Value() (Selection, error) { return t.el.Value() }

// Update applies a frontend-sent selection.
func (t *Table) Update(v TableValue) error { return t.el.Update(v) }

// UpdateRaw applies a raw frontend selection payload.
func (t *Table) UpdateRaw(raw json.RawMessage) error { return t.el.UpdateRaw(raw) }

// InvokeRaw routes a frontend RPC into the table's registered functions.
func (t *Table) InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return t.el.InvokeRaw(ctx, name, args)
}

// Descriptor returns the component descriptor.
func (t *Table) Descriptor() ui.Descriptor { return t.el.Descriptor() }

// resolve is the element convert hook: positional indices resolve against
// the current view, so indices recorded before a narrowing search fail with
// table.ErrRowIndex instead of silently selecting the wrong rows.
func (t *Table) resolve(v TableValue) (Selection, error) {
	var sel Selection
	if t.cfg.Selection == SelectNone && (len(v.Rows) > 0 || len(v.Cells) > 0) {
		return sel, fmt.Errorf("selection is disabled for this table")
	}
	if len(v.Rows) > 0 {
		indices := make([]int, 0, len(v.Rows))
		for _, s := range v.Rows {
			idx, err := strconv.Atoi(s)
			if err != nil {
				return sel, fmt.Errorf("row index %q is not an integer", s)
			}
			indices = append(indices, idx)
		}
		rows, err := t.view.GetRowsByIndex(indices)
		if err != nil {
			return sel, err
		}
		sel.Rows = rows
	}
	if len(v.Cells) > 0 {
		cells, err := t.resolveCells(v.Cells)
		if err != nil {
			return sel, err
		}
		sel.Cells = cells
	}
	return sel, nil
}

func (t *Table) resolveCells(points []table.CellPoint) ([]table.CellPoint, error) {
	out := make([]table.CellPoint, 0, len(points))
	for _, p := range points {
		idx, err := strconv.Atoi(p.Row)
		if err != nil {
			return nil, fmt.Errorf("cell row index %q is not an integer", p.Row)
		}
		rows, err := t.view.GetRowsByIndex([]int{idx})
		if err != nil {
			return nil, err
		}
		value, ok := rows[0][p.Column]
		if !ok {
			return nil, fmt.Errorf("cell column %q does not exist", p.Column)
		}
		out = append(out, table.CellPoint{Row: p.Row, Column: p.Column, Value: value})
	}
	return out, nil
}

// Search runs the query/sort pipeline against the source, replaces the view
// selections resolve against, and returns one clamped page.
func (t *Table) Search(ctx context.Context, req table.SearchRequest) (table.SearchResponse, error) {
	var resp table.SearchResponse
	if err := ctx.Err(); err != nil {
		return resp, err
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = t.cfg.PageSize
	}
	if pageSize < 0 {
		return resp, fmt.Errorf("page_size must be positive, got %d", pageSize)
	}
	if pageSize > table.MaxPageSize {
		return resp, fmt.Errorf("page_size %d exceeds maximum %d", pageSize, table.MaxPageSize)
	}
	if req.PageNumber < 0 {
		return resp, fmt.Errorf("page_number must be non-negative, got %d", req.PageNumber)
	}

	view := t.source
	var err error
	if req.Query != "" {
		if view, err = view.Search(req.Query); err != nil {
			return resp, err
		}
	}
	if len(req.Filters) > 0 {
		if view, err = view.FilterRows(req.Filters); err != nil {
			return resp, err
		}
	}
	if req.Sort != nil {
		if view, err = view.SortValues(*req.Sort); err != nil {
			return resp, err
		}
	}
	t.view = view

	resp.TotalRows = view.NumRows()
	resp.TotalColumns = view.NumColumns()

	page := view
	maxCols := req.MaxColumns
	if maxCols == 0 {
		maxCols = t.cfg.MaxColumns
	}
	if maxCols > 0 && maxCols < view.NumColumns() {
		names := make([]string, 0, maxCols)
		for _, c := range view.Columns()[:maxCols] {
			names = append(names, c.Name)
		}
		if page, err = view.SelectColumns(names); err != nil {
			return resp, err
		}
	}
	resp.Data = page.Take(pageSize, req.PageNumber*pageSize)
	return resp, nil
}

// Download serializes the current view in the requested format ("json" or
// "csv"), stores it as a blob and returns the artifact info including a
// retrieval URL. The full column set is exported even when the display was
// clamped.
func (t *Table) Download(ctx context.Context, format string) (export.Info, error) {
	if t.cfg.Store == nil {
		return export.Info{}, fmt.Errorf("downloads are not configured for this table")
	}
	var (
		data        []byte
		contentType string
		err         error
	)
	switch strings.ToLower(format) {
	case "json":
		data, err = t.view.ToJSON(ctx)
		contentType = "application/json"
	case "csv":
		data, err = t.view.ToCSV(ctx)
		contentType = "text/csv"
	default:
		return export.Info{}, fmt.Errorf("unsupported download format %q", format)
	}
	if err != nil {
		return export.Info{}, err
	}
	key := fmt.Sprintf("tables/%s/%d.%s", t.el.ID(), time.Now().UnixNano(), strings.ToLower(format))
	info, err := t.cfg.Store.Put(ctx, key, strings.NewReader(string(data)), export.PutOptions{ContentType: contentType})
	if err != nil {
		return export.Info{}, err
	}
	if info.URL == "" {
		if url, perr := t.cfg.Store.PresignURL(ctx, info.Key, export.SignedURLOptions{}); perr == nil {
			info.URL = url
		}
	}
	return info, nil
}

func (t *Table) handleSearch(ctx context.Context, args json.RawMessage) (any, error) {
	var req table.SearchRequest
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("decode search request: %w", err)
		}
	}
	return t.Search(ctx, req)
}

type downloadRequest struct {
	Format string `json:"format"`
}

func (t *Table) handleDownload(ctx context.Context, args json.RawMessage) (any, error) {
	var req downloadRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("decode download request: %w", err)
	}
	info, err := t.Download(ctx, req.Format)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": info.URL, "key": info.Key}, nil
}

// Clone produces an independent table under a new identity over the same
// source data. RPC endpoints and the convert hook are rebound to the new
// instance, so searches on the clone never move the original's view.
func (t *Table) Clone() (*Table, error) {
	cfg := t.cfg
	clone, err := NewTable(t.el.Context(), t.source, cfg)
	if err != nil {
		return nil, err
	}
	clone.view = t.view
	return clone, nil
}
