package services

// Cache keys. Each is matched by an invalidation pattern of the entity it
// is derived from.

const salesColumnsKey = "sales:columns"

func salesRowsKey(desc bool) string {
	if desc {
		return "sales:rows:desc"
	}
	return "sales:rows:asc"
}

func salesRowKey(id string) string {
	return "sales:row:" + id
}

func boardListsKey(boardID string) string {
	return "board:" + boardID + ":lists"
}

func cardKey(boardID, cardID string) string {
	return "board:" + boardID + ":card:" + cardID
}
