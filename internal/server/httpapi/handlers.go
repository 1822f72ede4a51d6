package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/locks"
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), s.logger, w, err)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()))
}

// --- sales rows ---

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	desc := r.URL.Query().Get("order") != "asc"
	rows, err := s.sales.ListRows(r.Context(), desc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getRow(w http.ResponseWriter, r *http.Request) {
	row, err := s.sales.GetRow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) createRow(w http.ResponseWriter, r *http.Request) {
	var in models.Row
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := s.sales.CreateRow(r.Context(), identityFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) updateRow(w http.ResponseWriter, r *http.Request) {
	var patch models.RowPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := s.sales.UpdateRow(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) deleteRow(w http.ResponseWriter, r *http.Request) {
	if err := s.sales.DeleteRow(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bulkUpdateRows(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRowUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.sales.BulkUpdate(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) bulkDeleteRows(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRowDelete
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.sales.BulkDelete(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	up, err := s.sales.StartImport(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *Server) completeImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.sales.CompleteImport(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- sales columns ---

func (s *Server) listColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.sales.ListColumns(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) createColumn(w http.ResponseWriter, r *http.Request) {
	var in models.Column
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	col, err := s.sales.CreateColumn(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *Server) updateColumn(w http.ResponseWriter, r *http.Request) {
	var patch models.ColumnPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	col, err := s.sales.UpdateColumn(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) deleteColumn(w http.ResponseWriter, r *http.Request) {
	if err := s.sales.DeleteColumn(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- boards ---

func (s *Server) listCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.boards.ListCards(r.Context(), mux.Vars(r)["board"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	card, err := s.boards.GetCard(r.Context(), vars["board"], vars["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) createCard(w http.ResponseWriter, r *http.Request) {
	var in models.Card
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.BoardID = mux.Vars(r)["board"]
	card, err := s.boards.CreateCard(r.Context(), identityFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) updateCard(w http.ResponseWriter, r *http.Request) {
	var patch models.CardPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	card, err := s.boards.UpdateCard(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) deleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.boards.DeleteCard(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createSubtask(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.boards.CreateSubtask(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"], in.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) updateSubtask(w http.ResponseWriter, r *http.Request) {
	var patch models.SubtaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.boards.UpdateSubtask(r.Context(), identityFrom(r.Context()), mux.Vars(r)["nano"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- leases ---

func (s *Server) listLocks(w http.ResponseWriter, r *http.Request) {
	leases, err := s.locks.List(r.Context(), mux.Vars(r)["scope"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if leases == nil {
		leases = []locks.Lease{}
	}
	writeJSON(w, http.StatusOK, leases)
}

// acquireLock answers 200 for grants and denials alike; a denial is a
// normal result carrying the holder.
func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := identityFrom(r.Context())
	res, err := s.locks.Acquire(r.Context(), vars["scope"], vars["id"], locks.Holder{ID: id.UserID, Name: id.DisplayName})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) heartbeatLock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	lease, err := s.locks.Heartbeat(r.Context(), vars["scope"], vars["id"], identityFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.locks.Release(r.Context(), vars["scope"], vars["id"], identityFrom(r.Context()).UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
