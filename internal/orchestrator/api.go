package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/dyluth/appraise/pkg/ledger"
)

// MaxContributionBytes caps the request body of the analyze endpoint.
const MaxContributionBytes = 10 << 20

var requiredContributionFields = []string{"developer", "code", "language", "timestamp"}

// analyzeHandler handles POST /api/contributions/analyze.
func (h *HealthServer) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxContributionBytes)

	contribution, err := decodeContribution(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("contribution exceeds %d bytes", MaxContributionBytes))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evaluation, err := h.engine.ProcessContribution(r.Context(), contribution)
	if err != nil {
		if ledger.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[Server] Failed to process contribution: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to process contribution")
		return
	}

	if h.store != nil {
		if err := h.store.SaveEvaluation(r.Context(), evaluation); err != nil {
			log.Printf("[Server] Failed to record evaluation %s: %v", evaluation.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to record evaluation")
			return
		}
	}

	writeJSON(w, http.StatusOK, evaluation)
}

// decodeContribution parses the request body. Every required key must be
// present, even though language may be empty.
func decodeContribution(r *http.Request) (*ledger.Contribution, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	var missing []string
	for _, field := range requiredContributionFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	var contribution ledger.Contribution
	if err := json.Unmarshal(body, &contribution); err != nil {
		return nil, fmt.Errorf("invalid contribution: %w", err)
	}
	return &contribution, nil
}

// getEvaluationHandler handles GET /api/contributions/{fingerprint}.
func (h *HealthServer) getEvaluationHandler(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no ledger attached")
		return
	}

	fingerprint := r.PathValue("fingerprint")
	if !ledger.IsFingerprint(fingerprint) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid fingerprint: %q", fingerprint))
		return
	}

	evaluation, err := h.store.GetEvaluation(r.Context(), fingerprint)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "evaluation not found")
			return
		}
		log.Printf("[Server] Failed to read evaluation %s: %v", fingerprint, err)
		writeError(w, http.StatusInternalServerError, "failed to read evaluation")
		return
	}

	writeJSON(w, http.StatusOK, evaluation)
}

// developerStatsHandler handles GET /api/developers/{developer}/stats.
func (h *HealthServer) developerStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no ledger attached")
		return
	}

	stats, err := h.store.DeveloperStats(r.Context(), r.PathValue("developer"))
	if err != nil {
		log.Printf("[Server] Failed to read developer stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read developer stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
