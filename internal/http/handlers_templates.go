package http

import (
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	templates, err := s.templates.List(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(templateListResponse{Templates: templates}).Write(w)
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	var t core.Template
	if err := decodeJSON(w, r, &t); err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	if t.Kind != "" && t.Kind != kind {
		s.writeError(w, r, log.OpSave, core.InvalidInput("template kind %q does not match %q", t.Kind, kind))
		return
	}
	t.Name = sanitizeInput(t.Name)
	t.Category = sanitizeInput(t.Category)

	saved, err := s.templates.Save(r.Context(), kind, t)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	NewJSONResponse().Body(saved).Write(w)
}

func (s *Server) handleSetTemplateActive(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	if req.IsActive == nil {
		s.writeError(w, r, log.OpSave, core.InvalidInput("is_active is required"))
		return
	}

	t, err := s.templates.SetActive(r.Context(), kind, r.PathValue("id"), *req.IsActive)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	NewJSONResponse().Body(t).Write(w)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if sources == nil {
		sources = []core.PaymentSource{}
	}
	NewJSONResponse().Body(sourceListResponse{PaymentSources: sources}).Write(w)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(src).Write(w)
}

func (s *Server) handleSaveSource(w http.ResponseWriter, r *http.Request) {
	var src core.PaymentSource
	if err := decodeJSON(w, r, &src); err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	src.ID = sanitizeInput(src.ID)
	src.Name = sanitizeInput(src.Name)

	saved, err := s.sources.Save(r.Context(), src)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	NewJSONResponse().Body(saved).Write(w)
}
