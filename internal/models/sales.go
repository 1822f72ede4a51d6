// Package models holds the records shared by the server API and the client:
// sales rows and columns, board cards and subtasks.
package models

import "time"

// Row is one sales-pipeline record. Fields holds the column values keyed by
// column id; their validation is owned by the business layer.
type Row struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	Date      time.Time      `json:"date"`
	Version   int64          `json:"version"`
	UpdatedBy string         `json:"updatedBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// RowPatch is a partial row update. Present field keys overwrite, a JSON
// null value removes the key.
type RowPatch struct {
	Fields map[string]any `json:"fields,omitempty"`
	Date   *time.Time     `json:"date,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RowPatch) Empty() bool {
	return len(p.Fields) == 0 && p.Date == nil
}

// Apply returns a copy of r with the patch applied locally. It mirrors the
// server merge so optimistic state matches the eventual response.
func (p RowPatch) Apply(r Row) Row {
	out := r.Clone()
	if out.Fields == nil && len(p.Fields) > 0 {
		out.Fields = make(map[string]any, len(p.Fields))
	}
	for k, v := range p.Fields {
		if v == nil {
			delete(out.Fields, k)
			continue
		}
		out.Fields[k] = v
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	return out
}

// Clone deep-copies the row so snapshots never share maps with live state.
func (r Row) Clone() Row {
	out := r
	if r.Fields != nil {
		out.Fields = copyMap(r.Fields)
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// BulkRowUpdate applies one patch to many rows.
type BulkRowUpdate struct {
	IDs   []string `json:"ids"`
	Patch RowPatch `json:"patch"`
}

// BulkRowDelete removes many rows.
type BulkRowDelete struct {
	IDs []string `json:"ids"`
}

// Column kinds.
const (
	ColumnText     = "text"
	ColumnNumber   = "number"
	ColumnDate     = "date"
	ColumnDropdown = "dropdown"
)

// Column describes one sales-sheet column. Options feed dropdown columns.
type Column struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Options  []string `json:"options,omitempty"`
	Position int      `json:"position"`
}

// ColumnPatch is a partial column update.
type ColumnPatch struct {
	Name     *string  `json:"name,omitempty"`
	Options  []string `json:"options,omitempty"`
	Position *int     `json:"position,omitempty"`
}

// ImportUpload is handed to a client that wants to import rows from a CSV.
type ImportUpload struct {
	ImportID string    `json:"importId"`
	URL      string    `json:"url"`
	Expires  time.Time `json:"expires"`
}

// ImportResult reports the rows created by an import.
type ImportResult struct {
	ImportID string   `json:"importId"`
	Created  int      `json:"created"`
	RowIDs   []string `json:"rowIds"`
}
