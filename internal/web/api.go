package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/molding-monitor/internal/engine"
	"github.com/sweeney/molding-monitor/internal/logic"
)

var errMissingHour = errors.New("hour is required")

func (s *Server) handlePinData(w http.ResponseWriter, r *http.Request) {
	var req PinDataRequest
	if err := decodeJSON(r, &req); err != nil {
		s.recordSnapshot(false)
		writeError(w, err)
		return
	}

	processed, err := s.engine.SubmitSnapshot(r.Context(), req.PinData, req.Timestamp)
	if errors.Is(err, engine.ErrInvalidSnapshot) {
		s.recordSnapshot(false)
		writeError(w, err)
		return
	}
	s.recordSnapshot(true)
	if processed == nil {
		processed = []string{}
	}
	resp := PinDataResponse{ProcessedMachines: processed}
	// Other failures are per machine. The snapshot itself was accepted.
	if err != nil {
		s.logger.Printf("web: pin-data: %v", err)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordSnapshot(accepted bool) {
	if s.tracker != nil {
		s.tracker.RecordSnapshot(accepted, time.Now())
	}
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Hour == nil {
		writeError(w, errMissingHour)
		return
	}

	entry, err := s.engine.Classify(r.Context(), engine.ClassifyRequest{
		MachineID:             req.MachineID,
		Hour:                  *req.Hour,
		Date:                  req.Date,
		Reason:                logic.Reason(req.Reason),
		Description:           req.Description,
		Duration:              req.Duration,
		PendingStoppageID:     req.PendingStoppageID,
		SAPNotificationNumber: req.SAPNotificationNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{Stoppage: engine.ViewStoppage(entry)})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Hour == nil {
		writeError(w, errMissingHour)
		return
	}

	hours, err := s.engine.AssignProduction(r.Context(), engine.AssignRequest{
		MachineID:      req.MachineID,
		Hour:           *req.Hour,
		Date:           req.Date,
		OperatorID:     req.OperatorID,
		MoldID:         req.MoldID,
		DefectiveUnits: req.DefectiveUnits,
		ApplyToShift:   req.ApplyToShift,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{UpdatedHours: hours})
}

func (s *Server) handleDefects(w http.ResponseWriter, r *http.Request) {
	var req DefectsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Hour == nil {
		writeError(w, errMissingHour)
		return
	}
	if err := s.engine.SetDefects(r.Context(), req.MachineID, req.Date, *req.Hour, req.DefectiveUnits); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) (engine.Timeline, bool) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "days must be a positive integer"})
			return engine.Timeline{}, false
		}
		days = n
	}
	tl, err := s.engine.Timeline(r.Context(), r.PathValue("id"), days)
	if err != nil {
		writeError(w, err)
		return engine.Timeline{}, false
	}
	return tl, true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), r.PathValue("id"), r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
