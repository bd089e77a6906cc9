package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LeventeLantos/message-sync/internal/cache"
	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/repo"
	"github.com/LeventeLantos/message-sync/internal/service"
	"github.com/LeventeLantos/message-sync/internal/syncer"
)

type Sessions interface {
	Start(userID string) (bool, error)
	Stop(userID string) bool
	Session(userID string) (syncer.Session, bool)
}

type MessageSender interface {
	Send(ctx context.Context, userID string, req service.SendRequest) (model.Message, error)
}

// View is the websocket endpoint whose connections keep a session alive.
type View interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
	Connections(userID string) int
}

// Services groups what the handlers depend on. Reports and View may be nil.
type Services struct {
	Messages repo.MessageRepository
	Settings repo.SettingsRepository
	Sessions Sessions
	Sender   MessageSender
	Reports  cache.ReportCache
	View     View
}

type Handler struct {
	svc Services
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) ListReceived(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	items, err := h.svc.Messages.ListReceived(r.Context(), userID)
	if err != nil {
		h.internalError(w, "list received messages", err)
		return
	}

	unread := 0
	for _, m := range items {
		if m.Status == model.Unread {
			unread++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "unread": unread})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	m, err := h.svc.Messages.MarkRead(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		h.internalError(w, "mark message read", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	n, err := h.svc.Messages.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.internalError(w, "mark all read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	items, err := h.svc.Messages.ListSent(r.Context(), userID)
	if err != nil {
		h.internalError(w, "list sent messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.Sender.Send(r.Context(), userID, req)
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotConfigured):
		writeError(w, http.StatusConflict, "provider is not configured")
	case err != nil && m.ID != "":
		// Recorded as failed; the provider rejected or never answered.
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "provider request failed", "message": m})
	case err != nil:
		h.internalError(w, "send message", err)
	default:
		writeJSON(w, http.StatusCreated, m)
	}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings.Get(r.Context())
	if err != nil {
		h.internalError(w, "load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var in model.ProviderSettings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	in.Token = strings.TrimSpace(in.Token)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	s, err := h.svc.Settings.Put(r.Context(), in)
	if err != nil {
		h.internalError(w, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	resp := map[string]any{"running": false}
	if s, ok := h.svc.Sessions.Session(userID); ok {
		resp["running"] = true
		resp["startedAt"] = s.StartedAt
		resp["polls"] = s.Poll.Runs
		resp["skippedPolls"] = s.Poll.Skipped
		resp["backfillStarted"] = s.BackfillFired
	}
	if h.svc.View != nil {
		resp["connections"] = h.svc.View.Connections(userID)
	}
	if h.svc.Reports != nil {
		reports, err := h.svc.Reports.LoadReports(r.Context(), userID)
		if err != nil {
			slog.Warn("load sync reports failed", "user_id", userID, "err", err)
		}
		resp["reports"] = reports
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SyncStart(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	started, err := h.svc.Sessions.Start(userID)
	if err != nil {
		h.internalError(w, "start sync", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true, "started": started})
}

func (h *Handler) SyncStop(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	stopped := h.svc.Sessions.Stop(userID)
	writeJSON(w, http.StatusOK, map[string]any{"running": false, "stopped": stopped})
}

func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	if h.svc.View == nil {
		writeError(w, http.StatusNotFound, "websocket disabled")
		return
	}
	userID, _ := UserID(r.Context())
	h.svc.View.Serve(w, r, userID)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
