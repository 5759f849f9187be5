package api

import (
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter registers every route on a chi router with CORS restricted to
// allowedOrigins.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealth)
	r.Post("/upload", h.HandleUpload)
	r.Get("/download/{sessionID}", h.HandleDownload)

	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/fields", h.HandleFields)
		r.Get("/question", h.HandleQuestion)
		r.Post("/answer", h.HandleAnswer)
		r.Get("/complete", h.HandleComplete)
		r.Get("/status", h.HandleStatus)
	})
	return r
}

func mimeAttachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
