package invalidation

// Cross-feature views computed from board data without keys of their own.
var boardDerivedPatterns = []string{
	"analytics:*",
	"calendar:*",
	"sheet:*",
}

// Rejection describes an identifier that was not embedded into any pattern.
type Rejection struct {
	Field string
	Value string
}

type patternSet struct {
	seen     map[string]struct{}
	list     []string
	rejected []Rejection
}

func (p *patternSet) add(patterns ...string) {
	for _, pat := range patterns {
		if _, dup := p.seen[pat]; dup {
			continue
		}
		p.seen[pat] = struct{}{}
		p.list = append(p.list, pat)
	}
}

// id sanitizes raw. ok is false for empty or rejected input; rejected is
// true only when raw was present but unsafe, and the rejection is recorded.
func (p *patternSet) id(field, raw string) (id string, ok, rejected bool) {
	id, ok, rejected = sanitizeID(raw)
	if rejected {
		v := raw
		if len(v) > maxIDLength {
			v = v[:maxIDLength] + "..."
		}
		p.rejected = append(p.rejected, Rejection{Field: field, Value: v})
	}
	return id, ok, rejected
}

// keyed returns the key itself and the pattern of its sub-keys. A trailing
// "*" straight after an id would also match siblings sharing it as a
// prefix ("card:1*" matches "card:12").
func keyed(key string) []string {
	return []string{key, key + ":*"}
}

func segment(id string, ok bool) string {
	if ok {
		return id
	}
	return "*"
}

// BuildPatterns returns the deduplicated glob patterns covering refs: each
// entity's own keys, the aggregate keys of its ancestors and the
// cross-feature views derived from it. Sibling entities are never matched.
// Identifiers that fail sanitization are reported; every pattern that
// would embed them is skipped.
func BuildPatterns(refs Refs) ([]string, []Rejection) {
	p := &patternSet{seen: make(map[string]struct{})}

	board, hasBoard, badBoard := p.id("boardId", refs.BoardID)
	list, hasList, badList := p.id("listId", refs.ListID)
	card, hasCard, badCard := p.id("cardId", refs.CardID)
	subtask, hasSubtask, _ := p.id("subtaskId", refs.SubtaskID)
	nano, hasNano, _ := p.id("subtaskNanoId", refs.SubtaskNanoID)

	// An empty ancestor widens to a wildcard segment. A rejected one is
	// never widened: patterns under it are dropped.
	boardSeg := segment(board, hasBoard)
	listSeg := segment(list, hasList)
	touchedBoards := false

	if hasSubtask {
		p.add(keyed("subtask:" + subtask)...)
		touchedBoards = true
	}
	if hasNano {
		p.add(keyed("subtask:nano:" + nano)...)
		touchedBoards = true
	}
	if (hasSubtask || hasNano) && !badBoard && !badCard {
		p.add("board:" + boardSeg + ":card:" + segment(card, hasCard) + ":subtasks*")
	}

	if hasCard {
		touchedBoards = true
		if !badBoard {
			p.add(keyed("board:" + boardSeg + ":card:" + card)...)
			if !badList {
				p.add("board:" + boardSeg + ":list:" + listSeg + ":cards*")
			}
		}
	}

	if hasList {
		touchedBoards = true
		if !badBoard {
			p.add(keyed("board:" + boardSeg + ":list:" + list)...)
		}
	}

	if hasBoard {
		touchedBoards = true
	}
	if touchedBoards {
		if !badBoard {
			p.add(
				"board:"+boardSeg+":summary*",
				"board:"+boardSeg+":lists*",
			)
		}
		p.add("boards:user:*")
		p.add(boardDerivedPatterns...)
	}

	if row, ok, _ := p.id("salesRowId", refs.SalesRowID); ok {
		p.add(keyed("sales:row:" + row)...)
		refs.SalesRows = true
	}
	if refs.SalesRows {
		if refs.SalesRowID == "" {
			p.add("sales:row:*")
		}
		p.add("sales:rows*", "sales:analytics*", "sheet:*")
	}
	if col, ok, _ := p.id("salesColumnId", refs.SalesColumnID); ok {
		p.add("sales:columns*")
		p.add(keyed("sales:dropdown:" + col)...)
		p.add("sales:rows*")
	}

	if ann, ok, _ := p.id("announcementId", refs.AnnouncementID); ok {
		p.add(keyed("announcement:" + ann)...)
		p.add("announcements:*")
	}
	if dep, ok, _ := p.id("departmentId", refs.DepartmentID); ok {
		p.add(keyed("department:" + dep)...)
		p.add("departments:*")
	}
	if user, ok, _ := p.id("userId", refs.UserID); ok {
		p.add(keyed("user:" + user)...)
		p.add(keyed("boards:user:" + user)...)
	}

	period, hasPeriod, _ := p.id("financePeriod", refs.FinancePeriod)
	switch {
	case hasPeriod:
		p.add(keyed("finance:" + period)...)
		p.add("finance:summary*")
	case refs.Finance && refs.FinancePeriod == "":
		p.add("finance:*")
	}

	return p.list, p.rejected
}
