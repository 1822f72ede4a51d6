package models

import "time"

// Card is a task card on a board list.
type Card struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Position    int        `json:"position"`
	Version     int64      `json:"version"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
}

// CardPatch is a partial card update. Setting ListID moves the card.
type CardPatch struct {
	ListID      *string    `json:"listId,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Position    *int       `json:"position,omitempty"`
}

// Subtask is a checklist item of a card. NanoID is the short public id
// clients address it by.
type Subtask struct {
	ID     string `json:"id"`
	NanoID string `json:"nanoId"`
	CardID string `json:"cardId"`
	Title  string `json:"title"`
	Done   bool   `json:"done"`
}

// SubtaskPatch is a partial subtask update.
type SubtaskPatch struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}
