package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"energybot/internal/models"
	"energybot/internal/reports"
)

type jsonResponse struct {
	Status  string `json:"status"` // "success" или "error"
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type handlers struct {
	deps Dependencies
	log  *slog.Logger
}

type segmentStat struct {
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

type statsResponse struct {
	TotalUsers      int                            `json:"total_users"`
	Segments        map[models.Segment]segmentStat `json:"segments"`
	PaymentsTotal   int                            `json:"payments_total"`
	PaymentsStatus  map[models.PaymentStatus]int   `json:"payments_by_status"`
	RubReceived     int64                          `json:"rub_received"`
	ReferralBonuses int64                          `json:"referral_bonuses"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.DB.Ping(ctx); err != nil {
			h.log.ErrorContext(ctx, "health check failed", "error", err)
			writeJSONError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Stats.Stats(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "stats failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to calculate statistics")
		return
	}
	resp := statsResponse{
		TotalUsers:      s.TotalUsers,
		Segments:        make(map[models.Segment]segmentStat),
		PaymentsTotal:   s.Payments.Total,
		PaymentsStatus:  s.Payments.ByStatus,
		RubReceived:     s.Payments.RubReceived,
		ReferralBonuses: s.Bonuses,
	}
	for _, seg := range []models.Segment{models.SegmentLead, models.SegmentQualified, models.SegmentClient, models.SegmentBanned} {
		resp.Segments[seg] = segmentStat{Count: s.Segments[seg], Percent: s.SegmentShare(seg)}
	}
	writeJSONSuccess(w, "Statistics retrieved successfully", resp)
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	via, _ := r.Context().Value(AdminContextKey).(string)
	h.log.InfoContext(r.Context(), "ledger export requested", "via", via)

	var buf bytes.Buffer
	if err := reports.WriteLedgerExport(r.Context(), h.deps.Export, &buf); err != nil {
		h.log.ErrorContext(r.Context(), "export failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to build export")
		return
	}
	name := fmt.Sprintf("ledger_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// --- Вспомогательные функции для JSON-ответов ---

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{Status: "error", Message: message})
}

func writeJSONSuccess(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jsonResponse{Status: "success", Message: message, Data: data})
}
