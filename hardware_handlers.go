package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/radiostream/pkg/radio"
)

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	s.handleFrequency(w, r, "source", s.st.SetSource)
}

func (s *Server) handleTuner(w http.ResponseWriter, r *http.Request) {
	s.handleFrequency(w, r, "tuner", s.st.SetTuner)
}

// handleFrequency serves GET (current) and POST {"hz": ...} for one DDS.
func (s *Server) handleFrequency(w http.ResponseWriter, r *http.Request, name string, set func(float64) (uint32, error)) {
	switch r.Method {
	case http.MethodGet:
		st := s.st.Status()
		hz, pinc := st.SourceHz, st.SourcePinc
		if name == "tuner" {
			hz, pinc = st.TunerHz, st.TunerPinc
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hz":   hz,
			"pinc": pinc,
		})

	case http.MethodPost:
		var req struct {
			Hz *float64 `json:"hz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Hz == nil {
			http.Error(w, "hz is required", http.StatusBadRequest)
			return
		}

		pinc, err := set(*req.Hz)
		if err != nil {
			log.Printf("[ERROR] set %s frequency: %v", name, err)
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"hz":      *req.Hz,
			"pinc":    pinc,
		})

		go s.broadcast(map[string]interface{}{
			"type": name + "_update",
			"hz":   *req.Hz,
			"pinc": pinc,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMute serves GET (state), POST {"muted": bool} and POST {} (toggle).
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		muted, err := s.st.radio.MuteState()
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"muted": muted})

	case http.MethodPost:
		var req struct {
			Muted *bool `json:"muted"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		var muted bool
		var err error
		if req.Muted == nil {
			muted, err = s.st.ToggleMute()
		} else {
			muted = *req.Muted
			err = s.st.SetMute(muted)
		}
		if err != nil {
			log.Printf("[ERROR] mute: %v", err)
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"muted":   muted,
		})

		go s.broadcast(map[string]interface{}{
			"type":  "mute_update",
			"muted": muted,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBenchmark runs a timer read benchmark, {"reads": n} optional.
func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := struct {
		Reads int `json:"reads"`
	}{Reads: radio.DefaultBenchmarkReads}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Reads <= 0 {
		http.Error(w, "reads must be positive", http.StatusBadRequest)
		return
	}

	res, err := s.st.Benchmark(req.Reads)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
