package events

// Event names published on the bus.
const (
	RowCreated      = "row-created"
	RowUpdated      = "row-updated"
	RowDeleted      = "row-deleted"
	RowLocked       = "row-locked"
	RowUnlocked     = "row-unlocked"
	RowsBulkUpdated = "rows-bulk-updated"
	RowsBulkDeleted = "rows-bulk-deleted"
	RowsImported    = "rows-imported"

	ColumnCreated = "column-created"
	ColumnUpdated = "column-updated"
	ColumnDeleted = "column-deleted"

	CardCreated    = "card-created"
	CardUpdated    = "card-updated"
	CardDeleted    = "card-deleted"
	CardLocked     = "card-locked"
	CardUnlocked   = "card-unlocked"
	SubtaskCreated = "subtask-created"
	SubtaskUpdated = "subtask-updated"
)
