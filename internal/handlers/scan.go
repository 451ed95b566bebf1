package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felo/eml-reply/internal/indexer"
)

// ScanProgress holds the state of the background re-index
type ScanProgress struct {
	mu          sync.RWMutex
	running     bool
	current     int
	total       int
	currentFile string
	result      *indexer.IndexResult
	err         error
	startedAt   time.Time
	finishedAt  time.Time
	clients     []chan ProgressEvent
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string      `json:"type"` // "progress", "complete", "error"
	Data interface{} `json:"data"`
}

// ScanStatus is the JSON view of a ScanProgress
type ScanStatus struct {
	Running    bool                 `json:"running"`
	Current    int                  `json:"current"`
	Total      int                  `json:"total"`
	File       string               `json:"file,omitempty"`
	Result     *indexer.IndexResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

func newScanProgress() *ScanProgress {
	return &ScanProgress{clients: make([]chan ProgressEvent, 0)}
}

// snapshot must be called with sp.mu held
func (sp *ScanProgress) snapshot() ScanStatus {
	s := ScanStatus{
		Running: sp.running,
		Current: sp.current,
		Total:   sp.total,
		File:    sp.currentFile,
		Result:  sp.result,
	}
	if sp.err != nil {
		s.Error = sp.err.Error()
	}
	if !sp.startedAt.IsZero() {
		t := sp.startedAt
		s.StartedAt = &t
	}
	if !sp.finishedAt.IsZero() {
		t := sp.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Status returns a copy of the current state
func (sp *ScanProgress) Status() ScanStatus {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.snapshot()
}

// start flips the state to running; false means a scan is already underway
func (sp *ScanProgress) start() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.running {
		return false
	}
	sp.running = true
	sp.current, sp.total, sp.currentFile = 0, 0, ""
	sp.result, sp.err = nil, nil
	sp.startedAt, sp.finishedAt = time.Now(), time.Time{}
	return true
}

func (sp *ScanProgress) update(current, total int, file string) {
	sp.mu.Lock()
	sp.current, sp.total, sp.currentFile = current, total, file
	sp.mu.Unlock()
	sp.broadcast("progress")
}

func (sp *ScanProgress) finish(result *indexer.IndexResult, err error) {
	sp.mu.Lock()
	sp.running = false
	sp.result, sp.err = result, err
	sp.finishedAt = time.Now()
	sp.mu.Unlock()

	if err != nil {
		sp.broadcast("error")
		return
	}
	sp.broadcast("complete")
}

// broadcast sends the current state to every SSE client without blocking
func (sp *ScanProgress) broadcast(eventType string) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	event := ProgressEvent{Type: eventType, Data: sp.snapshot()}
	for _, client := range sp.clients {
		select {
		case client <- event:
		default:
			// Client channel full, skip
		}
	}
}

func (sp *ScanProgress) subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 10)
	sp.mu.Lock()
	sp.clients = append(sp.clients, ch)
	sp.mu.Unlock()
	return ch
}

func (sp *ScanProgress) unsubscribe(ch chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, c := range sp.clients {
		if c == ch {
			sp.clients = append(sp.clients[:i], sp.clients[i+1:]...)
			break
		}
	}
}

// Scan starts a background re-index of the emails directory
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	if !h.scan.start() {
		h.writeError(w, http.StatusConflict, "scan already in progress")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		idx := indexer.NewIndexer(h.db, h.cfg.EmailsPath, h.parser, h.logger).
			WithConcurrency(h.cfg.Workers)

		result, err := idx.IndexWithProgress(h.ctx, h.scan.update)
		if err != nil {
			h.logger.WithError(err).Error("Scan failed")
		}
		h.scan.finish(result, err)
	}()

	h.writeJSON(w, http.StatusAccepted, h.scan.Status())
}

// GetScan reports the state of the current or last scan
func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scan.Status())
}

// ScanProgressSSE streams scan progress as Server-Sent Events until the scan ends
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	clientChan := h.scan.subscribe()
	defer h.scan.unsubscribe(clientChan)

	// Late subscribers still learn the current state
	if status := h.scan.Status(); status.Running {
		h.sendSSE(w, flusher, "progress", status)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case event := <-clientChan:
			h.sendSSE(w, flusher, event.Type, event.Data)
			if event.Type == "complete" || event.Type == "error" {
				return
			}
		}
	}
}

func (h *Handlers) sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal SSE data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
