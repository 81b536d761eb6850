package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"warranty_reminder/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

type handler struct {
	sched  Scheduler
	logger *logrus.Entry
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// trigger runs a manual pass. The pass outlives a disconnecting client.
func (h *handler) trigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.sched.TriggerNow(context.WithoutCancel(r.Context()))
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "already running"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Manual trigger failed")
		writeError(w, http.StatusInternalServerError, "trigger_failed", "Manual trigger failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	resp := errorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}
