package api

import "net/http"

func Router(h *Handler, auth *Authenticator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	private := http.NewServeMux()

	private.HandleFunc("GET /v1/messages/received", h.ListReceived)
	private.HandleFunc("PUT /v1/messages/received/{id}/read", h.MarkRead)
	private.HandleFunc("POST /v1/messages/received/read-all", h.MarkAllRead)

	private.HandleFunc("GET /v1/messages/sent", h.ListSent)
	private.HandleFunc("POST /v1/messages/send", h.Send)

	private.HandleFunc("GET /v1/settings", h.GetSettings)
	private.HandleFunc("PUT /v1/settings", h.PutSettings)

	private.HandleFunc("GET /v1/sync/status", h.SyncStatus)
	private.HandleFunc("POST /v1/sync/start", h.SyncStart)
	private.HandleFunc("POST /v1/sync/stop", h.SyncStop)

	private.HandleFunc("GET /v1/ws", h.Websocket)

	mux.Handle("/v1/", auth.Middleware(private))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("message-sync"))
	})

	return mux
}
