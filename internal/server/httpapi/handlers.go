package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
)

type meResponse struct {
	UserID string `json:"userId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("tokenkeeper\n"))
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	sub := auth.Subject(r.Context())
	if sub == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: sub})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
