package bot

import (
	"encoding/json"
	"errors"
	"net/http"
)

// commandRequest is the POST /command body.
type commandRequest struct {
	Command string `json:"command"`
}

// commandResponse is the reply envelope.
type commandResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler returns the HTTP surface for the command layer:
// POST /command with {"command": "..."}.
func (c *Commander) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, commandResponse{Error: "malformed request body"})
			return
		}

		reply, err := c.Execute(r.Context(), req.Command)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownCommand) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, commandResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{Reply: reply})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
