// Package web renders the server-side views.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/oshop/backoffice/types"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var pageNames = []string{"home", "login", "users_list", "users_add", "error"}

// Data carries everything a page needs from its handler. Success and Errors
// are the drained flash queues for this render.
type Data struct {
	Title       string
	CurrentUser *types.User
	Success     []string
	Errors      []string
	Users       []types.User
	CSRFToken   string
}

// Renderer holds the parsed page templates, each combined with the layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes the named page with the given status. Headers set before the
// call, session cookies included, go out with the response.
func (rn *Renderer) Render(w http.ResponseWriter, status int, page string, data Data) error {
	tmpl, ok := rn.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, "layout", data)
}
