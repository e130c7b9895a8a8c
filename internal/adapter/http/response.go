package http

import (
	"encoding/json"
	"net/http"

	"github.com/switchguard/switchguard/pkg/apperror"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps any error through the taxonomy and writes it
func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.Map(err)
	writeJSON(w, appErr.Status, map[string]interface{}{
		"error": errorBody{Code: appErr.Code, Message: appErr.Message},
	})
}
