package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/memes-airdrop/internal/service"
)

// handleRegisterParticipant handles POST /api/participants
func (s *Server) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	participant, err := s.participants.Register(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, participant)
}

// handleGetParticipant handles GET /api/participants/{address}
func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := s.participants.Get(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, participant)
}

// handleVerifyEmail handles POST /api/participants/{address}/verify-email
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	participant, err := s.participants.VerifyEmail(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, participant)
}

// handleCompleteTask handles POST /api/participants/{address}/tasks/{task}
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	participant, err := s.participants.CompleteTask(r.Context(), vars["address"], vars["task"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, participant)
}

// handleSetReferrer handles POST /api/participants/{address}/referrer
func (s *Server) handleSetReferrer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferralCode string `json:"referralCode"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	participant, err := s.participants.SetReferrer(r.Context(), mux.Vars(r)["address"], req.ReferralCode)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, participant)
}
