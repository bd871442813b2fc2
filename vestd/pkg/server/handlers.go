package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vestlabs/vest/vestd/pkg/metrics"
	"github.com/vestlabs/vest/vestd/pkg/vesting"
)

// CreateScheduleRequest is the body for POST /api/schedules.
type CreateScheduleRequest struct {
	Beneficiary    string `json:"beneficiary"`
	Total          uint64 `json:"total"`
	UpfrontPercent uint64 `json:"upfront_percent"`
	CliffTime      uint64 `json:"cliff_time"`
	RampEnd        uint64 `json:"ramp_end"`
}

// CreateScheduleResponse is the response for POST /api/schedules.
type CreateScheduleResponse struct {
	Beneficiary string `json:"beneficiary"`
	Index       int    `json:"index"`
}

// CreateBatchRequest is the body for POST /api/schedules/batch. The slices
// are parallel and must have equal lengths.
type CreateBatchRequest struct {
	Beneficiaries   []string `json:"beneficiaries"`
	Totals          []uint64 `json:"totals"`
	UpfrontPercents []uint64 `json:"upfront_percents"`
	CliffTimes      []uint64 `json:"cliff_times"`
	RampEnds        []uint64 `json:"ramp_ends"`
}

// CreateBatchResponse is the response for POST /api/schedules/batch.
type CreateBatchResponse struct {
	Indexes []int `json:"indexes"`
}

// SchedulesResponse is the response for GET /api/beneficiaries/{id}/schedules.
type SchedulesResponse struct {
	Beneficiary string             `json:"beneficiary"`
	Schedules   []vesting.Schedule `json:"schedules"`
}

// ClaimableResponse is the response for GET /api/beneficiaries/{id}/claimable.
type ClaimableResponse struct {
	Beneficiary string `json:"beneficiary"`
	Claimable   uint64 `json:"claimable"`
}

// ClaimResponse is the response for POST /api/beneficiaries/{id}/claim.
type ClaimResponse struct {
	Beneficiary string `json:"beneficiary"`
	Paid        uint64 `json:"paid"`
}

// RecoverResponse is the response for POST /api/beneficiaries/{id}/recover.
type RecoverResponse struct {
	Beneficiary string `json:"beneficiary"`
	Recovered   uint64 `json:"recovered"`
}

// SetAccountRequest is the body for the configuration update routes.
type SetAccountRequest struct {
	Account string `json:"account"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps ledger errors onto HTTP statuses: validation errors are
// 400, missing beneficiaries 404, logically-empty operations 409, and
// everything else (storage, token transfer) 502.
func statusFor(err error) int {
	switch {
	case vesting.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, vesting.ErrNoSchedules):
		return http.StatusNotFound
	case errors.Is(err, vesting.ErrNothingToClaim), errors.Is(err, vesting.ErrNothingToWithdraw):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	index, err := s.svc.CreateSchedule(r.Context(), req.Beneficiary, req.Total, req.UpfrontPercent, req.CliffTime, req.RampEnd)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.RecordScheduleCreated(req.Total)
	writeJSON(w, http.StatusCreated, CreateScheduleResponse{Beneficiary: req.Beneficiary, Index: index})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	indexes, err := s.svc.CreateScheduleBatch(r.Context(), req.Beneficiaries, req.Totals, req.UpfrontPercents, req.CliffTimes, req.RampEnds)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	for _, total := range req.Totals {
		metrics.RecordScheduleCreated(total)
	}
	writeJSON(w, http.StatusCreated, CreateBatchResponse{Indexes: indexes})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	beneficiary := chi.URLParam(r, "id")

	schedules, err := s.svc.Schedules(r.Context(), beneficiary)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if schedules == nil {
		schedules = []vesting.Schedule{}
	}
	writeJSON(w, http.StatusOK, SchedulesResponse{Beneficiary: beneficiary, Schedules: schedules})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	beneficiary := chi.URLParam(r, "id")

	claimable, err := s.svc.PreviewClaimable(r.Context(), beneficiary)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ClaimableResponse{Beneficiary: beneficiary, Claimable: claimable})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	beneficiary := chi.URLParam(r, "id")

	paid, err := s.svc.Claim(r.Context(), beneficiary)
	if err != nil {
		if errors.Is(err, vesting.ErrNothingToClaim) || errors.Is(err, vesting.ErrNoSchedules) {
			metrics.RecordClaim("empty", 0)
		} else {
			metrics.RecordClaim("error", 0)
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.RecordClaim("paid", paid)
	writeJSON(w, http.StatusOK, ClaimResponse{Beneficiary: beneficiary, Paid: paid})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	beneficiary := chi.URLParam(r, "id")

	recovered, err := s.svc.Recover(r.Context(), beneficiary)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.RecordRecovery(recovered)
	writeJSON(w, http.StatusOK, RecoverResponse{Beneficiary: beneficiary, Recovered: recovered})
}

func (s *Server) handleSetRecoveryAccount(w http.ResponseWriter, r *http.Request) {
	var req SetAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.SetRecoveryAccount(r.Context(), req.Account); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SetAccountRequest{Account: req.Account})
}

func (s *Server) handleSetAdministrator(w http.ResponseWriter, r *http.Request) {
	var req SetAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.SetAdministrator(r.Context(), req.Account); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SetAccountRequest{Account: req.Account})
}
