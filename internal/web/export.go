package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sweeney/molding-monitor/internal/engine"
	"github.com/sweeney/molding-monitor/internal/metrics"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleTimelineXLSX(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.timeline(w, r)
	if !ok {
		metrics.ObserveExport("xlsx", metrics.ResultRejected)
		return
	}
	data, err := BuildTimelineXLSX(tl)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError)
		s.logger.Printf("web: export %s: %v", tl.MachineID, err)
		writeError(w, err)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s_%s.xlsx", tl.MachineID, tl.From, tl.To)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// BuildTimelineXLSX renders a timeline as a workbook with an hours sheet
// and a stoppages sheet.
func BuildTimelineXLSX(tl engine.Timeline) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	hoursSheet := "hours"
	stopsSheet := "stoppages"
	if err := f.SetSheetName("Sheet1", hoursSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(stopsSheet); err != nil {
		return nil, err
	}

	hourHeader := []any{"Date", "Hour", "Units", "Defects", "Running min", "Stoppage min", "Status", "Operator", "Mold"}
	if err := f.SetSheetRow(hoursSheet, "A1", &hourHeader); err != nil {
		return nil, err
	}
	stopHeader := []any{"Date", "Hour", "ID", "Reason", "Description", "Start", "End", "Duration min", "Pending", "Classified", "SAP notification"}
	if err := f.SetSheetRow(stopsSheet, "A1", &stopHeader); err != nil {
		return nil, err
	}

	hourRow, stopRow := 2, 2
	for _, d := range tl.Days {
		for _, h := range d.Hours {
			row := []any{d.Date, h.Hour, h.UnitsProduced, h.DefectiveUnits, h.RunningMinutes, h.StoppageMinutes, h.Status, h.OperatorID, h.MoldID}
			if err := f.SetSheetRow(hoursSheet, fmt.Sprintf("A%d", hourRow), &row); err != nil {
				return nil, err
			}
			hourRow++

			for _, st := range h.Stoppages {
				end := ""
				if st.EndTime != nil {
					end = st.EndTime.UTC().Format(time.RFC3339)
				}
				row := []any{d.Date, h.Hour, st.ID, st.Reason, st.Description, st.StartTime.UTC().Format(time.RFC3339), end,
					st.Duration, st.IsPending, st.IsClassified, st.SAPNotificationNumber}
				if err := f.SetSheetRow(stopsSheet, fmt.Sprintf("A%d", stopRow), &row); err != nil {
					return nil, err
				}
				stopRow++
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
