package handlers

import (
	"net/http"

	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/indexer"
)

// StatsResponse combines database counts with indexing state
type StatsResponse struct {
	*db.Stats
	LastScan   string `json:"last_scan,omitempty"`
	EmailsPath string `json:"emails_path"`
	Locale     string `json:"locale"`
}

// Stats reports index statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.serverError(w, r, "Failed to get stats", err)
		return
	}

	lastScan, err := h.db.GetSetting(indexer.SettingLastIndexed)
	if err != nil {
		h.serverError(w, r, "Failed to get last scan time", err)
		return
	}

	h.writeJSON(w, http.StatusOK, StatsResponse{
		Stats:      stats,
		LastScan:   lastScan,
		EmailsPath: h.cfg.EmailsPath,
		Locale:     string(h.parser.Locale()),
	})
}

// Health reports whether the database answers
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.WithError(err).Error("Health check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
