package http

import (
	"net/http"

	"revenue/internal/core"
)

func (s *Server) handleListPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := s.ledger.ListPartners(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(partners).Write(w)
}

func (s *Server) handleGetPartner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError(core.MsgPartnerNotFound).Write(w)
		return
	}
	p, err := s.ledger.GetPartner(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(p).Write(w)
}

func (s *Server) handleCreatePartner(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var name string
	if raw, ok := fields["name"]; ok {
		if name, err = parseJSONString(raw); err != nil {
			name = ""
		}
	}
	if name == "" {
		writeError(w, r, core.NewValidationError(core.FieldError{Field: "name", Message: core.MsgEmptyPartnerName}))
		return
	}

	p, err := s.ledger.CreatePartner(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Data(p).Write(w)
}
