package http

import (
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

func (s *Server) handleCloseOccurrence(w http.ResponseWriter, r *http.Request) {
	p, err := parseOccurrencePath(r)
	if err != nil {
		s.writeError(w, r, log.OpClose, err)
		return
	}
	var req services.CloseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpClose, err)
		return
	}
	req.PaymentSourceID = sanitizeInput(req.PaymentSourceID)
	req.Notes = sanitizeInput(req.Notes)

	occ, err := s.months.CloseOccurrence(r.Context(), p.Month, p.InstanceID, p.OccurrenceID, req)
	if err != nil {
		s.writeError(w, r, log.OpClose, err)
		return
	}
	NewJSONResponse().Body(occ).Write(w)
}

func (s *Server) handleReopenOccurrence(w http.ResponseWriter, r *http.Request) {
	p, err := parseOccurrencePath(r)
	if err != nil {
		s.writeError(w, r, log.OpReopen, err)
		return
	}
	occ, err := s.months.ReopenOccurrence(r.Context(), p.Month, p.InstanceID, p.OccurrenceID)
	if err != nil {
		s.writeError(w, r, log.OpReopen, err)
		return
	}
	NewJSONResponse().Body(occ).Write(w)
}

func (s *Server) handleSplitOccurrence(w http.ResponseWriter, r *http.Request) {
	p, err := parseOccurrencePath(r)
	if err != nil {
		s.writeError(w, r, log.OpSplit, err)
		return
	}
	var req services.SplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpSplit, err)
		return
	}
	req.PaymentSourceID = sanitizeInput(req.PaymentSourceID)
	req.Notes = sanitizeInput(req.Notes)

	res, err := s.months.SplitOccurrence(r.Context(), p.Month, p.InstanceID, p.OccurrenceID, req)
	if err != nil {
		s.writeError(w, r, log.OpSplit, err)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	p, err := parseOccurrencePath(r)
	if err != nil {
		s.writeError(w, r, log.OpPay, err)
		return
	}
	var payment core.Payment
	if err := decodeJSON(w, r, &payment); err != nil {
		s.writeError(w, r, log.OpPay, err)
		return
	}

	occ, err := s.months.ApplyPayment(r.Context(), p.Month, p.InstanceID, p.OccurrenceID, payment)
	if err != nil {
		s.writeError(w, r, log.OpPay, err)
		return
	}
	NewJSONResponse().Body(occ).Write(w)
}
