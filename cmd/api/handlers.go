package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/shopspring/decimal"
)

func (s *Server) listPlansHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	plans, err := s.ledger.ListPlans(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) createPlanHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NewPlan
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := s.ledger.CreatePlan(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	plan, err := s.ledger.GetPlan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) updatePlanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.UpdatePlan
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := s.ledger.UpdatePlan(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) deactivatePlanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	plan, err := s.ledger.DeactivatePlan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type admissionResponse struct {
	Student      *models.Student       `json:"student"`
	Installments []*models.Installment `json:"installments"`
}

func (s *Server) admitStudentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NewStudent
	if !decodeBody(w, r, &req) {
		return
	}
	st, installments, err := s.ledger.Admit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, admissionResponse{Student: st, Installments: installments})
}

func (s *Server) getStudentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.ledger.GetStudent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) enrollHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		PlanID    uuid.UUID `json:"plan_id"`
		StartDate string    `json:"start_date"` // YYYY-MM-DD
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	var start time.Time
	if req.StartDate != "" {
		var err error
		if start, err = calendar.Parse(req.StartDate); err != nil {
			badRequest(w, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
	}
	installments, err := s.ledger.Enroll(r.Context(), id, req.PlanID, start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installments)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	st, err := s.ledger.Withdraw(r.Context(), id, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) recomputeStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := s.ledger.RecomputeStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.StudentStatus{"status": status})
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	installments, err := s.ledger.ListInstallments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installments)
}

func (s *Server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := s.ledger.ListPendingOrNext(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) applyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.ledger.ApplyPayment(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) adjustmentHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.ledger.RecordAdjustment(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.ledger.GetPayment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) cancelPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	p, err := s.ledger.CancelPayment(r.Context(), id, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type rateBody struct {
	Rate decimal.Decimal `json:"rate"`
}

func (s *Server) getRateHandler(w http.ResponseWriter, r *http.Request) {
	rate, err := s.ledger.DailyRate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rateBody{Rate: rate})
}

func (s *Server) setRateHandler(w http.ResponseWriter, r *http.Request) {
	var req rateBody
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ledger.SetDailyRate(r.Context(), req.Rate); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.SweepOverdue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
