package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	domainauth "github.com/target/sessionauth/internal/domain/auth"
)

//go:embed pages/*.tmpl
var pageFS embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFS, "pages/*.tmpl"))

// PageHandlers renders server-side pages using the render-time session accessor.
type PageHandlers struct {
	Sessions *SessionAccessor
	Title    string
	Logger   *slog.Logger
}

type indexData struct {
	Title   string
	Session *domainauth.ClientSession
}

// Index renders the landing page.
// GET /.
func (h *PageHandlers) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sess, err := h.Sessions.RenderSession(r)
	if err != nil {
		h.Sessions.logger().ErrorContext(r.Context(), "render session failed", "error", err)
	}

	title := h.Title
	if title == "" {
		title = "sessionauth"
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html.tmpl", indexData{Title: title, Session: sess}); err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "render index failed", "error", err)
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
