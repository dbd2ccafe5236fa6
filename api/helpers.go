package api

import (
	"encoding/json"
	"net/http"

	"github.com/fishset/fishdedup/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func HealthCheck(w http.ResponseWriter, r *http.Request, storage *services.Storage) {
	dbStatus := "ok"
	if err := storage.DB().PingContext(r.Context()); err != nil {
		dbStatus = "unavailable"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": dbStatus,
	})
}
