package view

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/statusky/statusky/internal/feed"
)

//go:embed templates/*.html
var templates embed.FS

// HomeData is the view-model for the home page.
type HomeData struct {
	Feed  *feed.Feed
	Error string
}

// LoginData is the view-model for the login page.
type LoginData struct {
	Error string
}

// Renderer turns view-models into HTML pages.
type Renderer interface {
	Home(w http.ResponseWriter, data HomeData) error
	Login(w http.ResponseWriter, data LoginData) error
}

// TemplateRenderer implements Renderer with embedded html/template files.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Home renders the feed page.
func (r *TemplateRenderer) Home(w http.ResponseWriter, data HomeData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return r.tmpl.ExecuteTemplate(w, "home.html", data)
}

// Login renders the login page.
func (r *TemplateRenderer) Login(w http.ResponseWriter, data LoginData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return r.tmpl.ExecuteTemplate(w, "login.html", data)
}
