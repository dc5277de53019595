package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/radiostream/pkg/stream"
	"github.com/radiostream/pkg/transmit"
)

// API Handlers

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.st.StartStreaming(req.Endpoint); err != nil {
		log.Printf("[WARN] start streaming: %v", err)
		writeFailure(w, err)
		return
	}

	st := s.st.stream.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": st.SessionID,
		"endpoint":   st.Endpoint,
	})
	go s.broadcast(statusMessage(s.st.Status()))
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.st.StopStreaming(); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   s.st.stream.State().String(),
	})
	go s.broadcast(statusMessage(s.st.Status()))
}

func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.stream.Stats())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.Status())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeFailure reports err in the {"success": false} shape with a status
// code picked from the error taxonomy.
func writeFailure(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, stream.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, transmit.ErrTransmit):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
