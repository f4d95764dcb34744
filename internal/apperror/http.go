package apperror

import (
	"encoding/json"
	"net/http"
)

// Write renders err as the JSON error envelope with its mapped status.
func Write(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(BodyOf(err))
}
