package models

// Deleted is the payload of single-record delete events.
type Deleted struct {
	ID string `json:"id"`
}

// BulkChange is the payload of rows-bulk-updated and rows-bulk-deleted.
type BulkChange struct {
	IDs   []string  `json:"ids"`
	Count int       `json:"count"`
	Patch *RowPatch `json:"patch,omitempty"`
}
