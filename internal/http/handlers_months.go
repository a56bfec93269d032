package http

import (
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.months.ListMonths(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if months == nil {
		months = []core.Month{}
	}
	NewJSONResponse().Body(monthListResponse{Months: months}).Write(w)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	doc, err := s.months.GetMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(doc).Write(w)
}

func (s *Server) handleGenerateMonth(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}
	doc, err := s.months.GenerateMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(doc).Write(w)
}

func (s *Server) handleSyncMonth(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, log.OpSync, err)
		return
	}
	doc, added, err := s.months.SyncMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, log.OpSync, err)
		return
	}
	NewJSONResponse().Body(syncResponse{Document: doc, Added: added}).Write(w)
}

func (s *Server) handleEnsureMonth(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, log.OpEnsure, err)
		return
	}
	res, err := s.months.EnsureMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, log.OpEnsure, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	NewJSONResponse().
		Status(status).
		Body(ensureResponse{Document: res.Document, Created: res.Created, Added: res.Added}).
		Write(w)
}

func (s *Server) handleDeleteMonth(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.months.DeleteMonth(r.Context(), month); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
