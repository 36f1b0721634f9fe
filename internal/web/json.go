package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sweeney/molding-monitor/internal/engine"
	"github.com/sweeney/molding-monitor/internal/logic"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("invalid json")

// PinDataRequest is one snapshot pushed by the pin agent.
type PinDataRequest struct {
	PinData   string `json:"pinData"`
	Timestamp string `json:"timestamp"`
}

// PinDataResponse lists the machines touched by a snapshot. Error is set
// when the snapshot was accepted but some machine failed to persist; the
// caller must not resend it.
type PinDataResponse struct {
	ProcessedMachines []string `json:"processedMachines"`
	Error             string   `json:"error,omitempty"`
}

// ClassifyRequest is the operator's stoppage classification.
type ClassifyRequest struct {
	MachineID             string `json:"machineId"`
	Hour                  *int   `json:"hour"`
	Date                  string `json:"date"`
	Reason                string `json:"reason"`
	Description           string `json:"description"`
	Duration              int    `json:"duration"`
	PendingStoppageID     string `json:"pendingStoppageId,omitempty"`
	SAPNotificationNumber string `json:"sapNotificationNumber,omitempty"`
}

// ClassifyResponse returns the stored entry.
type ClassifyResponse struct {
	Stoppage engine.StoppageView `json:"stoppage"`
}

// AssignRequest sets operator, mold and defects for an hour or its shift.
type AssignRequest struct {
	MachineID      string  `json:"machineId"`
	Hour           *int    `json:"hour"`
	Date           string  `json:"date"`
	OperatorID     *string `json:"operatorId,omitempty"`
	MoldID         *string `json:"moldId,omitempty"`
	DefectiveUnits *int    `json:"defectiveUnits,omitempty"`
	ApplyToShift   bool    `json:"applyToShift"`
}

// AssignResponse lists the hours that were updated.
type AssignResponse struct {
	UpdatedHours []engine.AssignedHour `json:"updatedHours"`
}

// DefectsRequest overwrites the defective unit count of one hour.
type DefectsRequest struct {
	MachineID      string `json:"machineId"`
	Hour           *int   `json:"hour"`
	Date           string `json:"date"`
	DefectiveUnits int    `json:"defectiveUnits"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errBadJSON
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, v); err != nil {
		return errBadJSON
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), errorJSON{Error: err.Error()})
}

// statusCode maps engine errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownMachine):
		return http.StatusNotFound
	case errors.Is(err, errBadJSON),
		errors.Is(err, errMissingHour),
		errors.Is(err, engine.ErrInvalidSnapshot),
		errors.Is(err, engine.ErrInvalidHour),
		errors.Is(err, engine.ErrInvalidDate),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrInvalidDefects),
		errors.Is(err, engine.ErrInvalidPeriod),
		errors.Is(err, engine.ErrUnknownMold),
		errors.Is(err, logic.ErrInvalidReason),
		errors.Is(err, logic.ErrSAPNotificationRequired):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
