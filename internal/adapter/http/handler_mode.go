package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/switchguard/switchguard/internal/ports"
	"github.com/switchguard/switchguard/internal/usecase"
)

// ModeHandler handles mode read, switch, rollback, and audit history requests
type ModeHandler struct {
	orchestrator *usecase.Orchestrator
	rollback     *usecase.EmergencyRollback
	audit        ports.AuditRepository
}

// NewModeHandler creates a new mode handler
func NewModeHandler(orchestrator *usecase.Orchestrator, rollback *usecase.EmergencyRollback, audit ports.AuditRepository) *ModeHandler {
	return &ModeHandler{
		orchestrator: orchestrator,
		rollback:     rollback,
		audit:        audit,
	}
}

// RegisterRoutes registers mode routes
func (h *ModeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/orgs/{org}/mode", h.GetMode).Methods("GET")
	router.HandleFunc("/api/v1/orgs/{org}/mode/switch", h.RequestSwitch).Methods("POST")
	router.HandleFunc("/api/v1/orgs/{org}/mode/rollback", h.EmergencyRollback).Methods("POST")
	router.HandleFunc("/api/v1/orgs/{org}/audit", h.ListAudit).Methods("GET")
}

// GetMode handles retrieving the current mode, lazily initializing
// first-seen organizations to demo
func (h *ModeHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	record, err := h.orchestrator.CurrentMode(r.Context(), org)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// RequestSwitch handles a mode switch request
func (h *ModeHandler) RequestSwitch(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	var req usecase.SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.OrganizationID = org
	if actor := actorFromContext(r.Context()); actor != "" {
		req.Actor = actor
	}

	result, err := h.orchestrator.RequestSwitch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == usecase.SwitchPendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// EmergencyRollback handles the break-glass path
func (h *ModeHandler) EmergencyRollback(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	var req usecase.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.OrganizationID = org
	if actor := actorFromContext(r.Context()); actor != "" {
		req.Actor = actor
	}

	record, partials, err := h.rollback.Rollback(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "completed",
		"record":           record,
		"partial_failures": partials,
	})
}

// ListAudit handles retrieving recent audit events for an organization
func (h *ModeHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	events, err := h.audit.ListByOrganization(r.Context(), org, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}
