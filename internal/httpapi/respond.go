package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const jsonContentType = "application/json; charset=utf-8"

// encodeFailedBody is sent when a response value cannot be encoded.
var encodeFailedBody = []byte(`{"error":"Internal Server Error","message":"failed to encode response"}`)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes v before writing headers, so an unencodable value turns
// into a 500 instead of a truncated 200. Responses are never cached: the
// chart status changes every run.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode json response", "status", status, "error", err)
		status, body = http.StatusInternalServerError, encodeFailedBody
	}

	h := w.Header()
	h.Set("Content-Type", jsonContentType)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Debug("write json response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: http.StatusText(status), Message: msg})
}
