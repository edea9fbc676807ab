package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"pulsecorr/internal/alerts"
	"pulsecorr/internal/apierr"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	envID := r.URL.Query().Get("env_id")

	result, err := s.alertStore.ListAlerts(r.Context(), limit, envID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (s *Server) handlePersistAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.alertStore.PersistAlert(r.Context(), id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			respondError(w, apierr.StatusFor(err), err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "persisted": true})
}

func (s *Server) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	feedback := r.URL.Query().Get("feedback")
	if feedback != string(alerts.FeedbackCorrect) && feedback != string(alerts.FeedbackIncorrect) {
		respondError(w, http.StatusBadRequest, errors.New("feedback must be 'correct' or 'incorrect'"))
		return
	}

	if err := s.alertStore.AddFeedback(r.Context(), id, alerts.Feedback(feedback)); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			respondError(w, apierr.StatusFor(err), err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "feedback": feedback})
}
