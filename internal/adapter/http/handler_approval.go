package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/usecase"
)

// ApprovalHandler handles approval request lookup and decision submission
type ApprovalHandler struct {
	workflow *usecase.ApprovalWorkflow
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(workflow *usecase.ApprovalWorkflow) *ApprovalHandler {
	return &ApprovalHandler{workflow: workflow}
}

// RegisterRoutes registers approval routes
func (h *ApprovalHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/approvals/{id}", h.GetRequest).Methods("GET")
	router.HandleFunc("/api/v1/approvals/{id}/decisions", h.SubmitDecision).Methods("POST")
	router.HandleFunc("/api/v1/orgs/{org}/approvals", h.ListPending).Methods("GET")
}

// GetRequest handles retrieving an approval request by ID
func (h *ApprovalHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	request, err := h.workflow.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

type decisionBody struct {
	Approver string `json:"approver"`
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

// SubmitDecision handles recording an approver's verdict
func (h *ApprovalHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if actor := actorFromContext(r.Context()); actor != "" {
		body.Approver = actor
	}

	result, err := h.workflow.RecordDecision(r.Context(), id, body.Approver, domain.DecisionValue(body.Decision), body.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListPending handles listing pending approval requests for an organization
func (h *ApprovalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	requests, err := h.workflow.ListPending(r.Context(), org)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    len(requests),
	})
}
