package triage

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

const maxEventBytes = 1 << 20

// AlarmResponse is the body returned by POST /alarms.
type AlarmResponse struct {
	Outcome
	Error string `json:"error,omitempty"`
}

// RegisterRoutes mounts POST /alarms on r. The request body is one alarm
// event; the response reports what Handle did with it.
func RegisterRoutes(r *mux.Router, svc *Service) {
	r.HandleFunc("/alarms", svc.handleAlarm).Methods(http.MethodPost)
}

func (s *Service) handleAlarm(w http.ResponseWriter, r *http.Request) {
	event, err := ReadEvent(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AlarmResponse{Outcome: Outcome{Status: StatusFailed}, Error: err.Error()})
		return
	}

	out, err := s.Handle(r.Context(), event)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, AlarmResponse{Outcome: out, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, AlarmResponse{Outcome: out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
