// Package handler contains the HTTP handlers: the register/login/logout
// forms, the JSON endpoints and the HTML pages.
//
// Handlers parse the request, call a service and write the response. They
// hold no business rules; status codes and redirects are decided here and
// nowhere else.
package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/closetmatrix/closet-matrix/internal/auth"
	"github.com/closetmatrix/closet-matrix/internal/model"
	"github.com/closetmatrix/closet-matrix/internal/session"
)

// pageNames are the templates that each define "content" for base.html.
var pageNames = []string{"home", "profile", "login", "register"}

// PageData is passed to every page template.
type PageData struct {
	Title   string
	Error   string
	Success string
	Next    string
	Email   string
	User    *session.Session

	SizeCategories []string
	SizeOptions    map[string][]string
}

// PageHandler renders the HTML pages.
//
// Templates are parsed once at startup: one set per page, each combining
// base.html with that page's "content" block.
type PageHandler struct {
	pages      map[string]*template.Template
	remembered func(*http.Request) string
	logger     *slog.Logger
}

// NewPageHandler parses base.html plus one <name>.html per page from
// templates. remembered may be nil; when set it supplies the login page's
// pre-filled email.
func NewPageHandler(templates fs.FS, remembered func(*http.Request) string, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templates, "base.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	if remembered == nil {
		remembered = func(*http.Request) string { return "" }
	}
	return &PageHandler{pages: pages, remembered: remembered, logger: logger}, nil
}

// HandleHome serves GET / behind Gate.RequirePage.
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home", PageData{Title: "Closet Matrix"})
}

// HandleProfile serves GET /profile behind Gate.RequirePage.
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "profile", PageData{
		Title:          "My Profile · Closet Matrix",
		SizeCategories: model.SizeCategories,
		SizeOptions:    model.SizeOptions,
	})
}

// HandleLoginPage serves GET /login. A visitor who is already logged in
// is sent home.
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "login", PageData{
		Title: "Log in · Closet Matrix",
		Next:  safeNext(r.URL.Query().Get("next")),
		Email: h.remembered(r),
	})
}

// HandleRegisterPage serves GET /register.
func (h *PageHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "register", PageData{Title: "Create account · Closet Matrix"})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, name string, data PageData) {
	q := r.URL.Query()
	data.Error = q.Get("error")
	data.Success = q.Get("success")
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		data.User = s
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[name].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
