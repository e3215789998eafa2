package http

import (
	"fmt"
	"net/http"

	"revenue/internal/core"
	"revenue/internal/log"
)

const (
	msgRevenueCreated = "Data pendapatan berhasil ditambahkan"
	msgRevenueUpdated = "Data pendapatan berhasil diperbarui"
	msgRevenueDeleted = "Data pendapatan berhasil dihapus"
	msgBulkDeleted    = "%d data pendapatan berhasil dihapus"
)

func (s *Server) handleListRevenues(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, page, err := s.ledger.ListRevenues(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(items).Pagination(page).Write(w)
}

func (s *Server) handleGetRevenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError(core.MsgRevenueNotFound).Write(w)
		return
	}
	rev, err := s.ledger.GetRevenue(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(rev).Write(w)
}

func (s *Server) handleCreateRevenue(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := parseRevenueInput(fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rev, err := s.ledger.CreateRevenue(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	log.FromContext(ctx).InfoContext(ctx, "Revenue created",
		log.NewFields().WithRevenue(rev.ID, rev.PartnerID, string(rev.Category), rev.Amount.Cents).ToSlice()...)
	NewResponse().Status(http.StatusCreated).Message(msgRevenueCreated).Data(rev).Write(w)
}

func (s *Server) handleUpdateRevenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError(core.MsgRevenueNotFound).Write(w)
		return
	}
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, fieldErrs := parseRevenuePatch(fields)
	if len(fieldErrs) > 0 {
		writeError(w, r, core.NewValidationError(fieldErrs...))
		return
	}

	rev, err := s.ledger.UpdateRevenue(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Message(msgRevenueUpdated).Data(rev).Write(w)
}

func (s *Server) handleDeleteRevenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError(core.MsgRevenueNotFound).Write(w)
		return
	}
	rev, err := s.ledger.DeleteRevenue(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	log.FromContext(ctx).InfoContext(ctx, "Revenue deleted",
		log.NewFields().WithRevenue(rev.ID, rev.PartnerID, string(rev.Category), rev.Amount.Cents).ToSlice()...)
	NewResponse().Message(msgRevenueDeleted).Write(w)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := parseIDs(fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ledger.BulkDeleteRevenues(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	log.FromContext(ctx).InfoContext(ctx, "Revenues bulk deleted",
		log.FieldCount, res.Deleted,
		"missing", len(res.Missing))
	NewResponse().Message(fmt.Sprintf(msgBulkDeleted, res.Deleted)).Data(res).Write(w)
}
