package presenter

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lingodesk/bellhop/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var titleCaser = cases.Title(language.English)

// Renderer produces toast text. Server-provided title and message win;
// per-kind templates fill in whatever the server left blank.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded per-kind templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("bodies").
		Funcs(template.FuncMap{"title": titleCaser.String}).
		ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing notification templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render returns the toast title and body for a notification.
func (r *Renderer) Render(n domain.Notification) (title, body string) {
	title = n.Title
	if title == "" {
		title = titleCaser.String(strings.ReplaceAll(string(n.Kind), "_", " "))
	}

	body = n.Message
	if body == "" {
		body = r.fallbackBody(n)
	}
	return title, body
}

func (r *Renderer) fallbackBody(n domain.Notification) string {
	name := string(n.Kind)
	if r.tmpl.Lookup(name) == nil {
		name = "generic"
	}

	var sb strings.Builder
	if err := r.tmpl.ExecuteTemplate(&sb, name, n); err != nil {
		return titleCaser.String(strings.ReplaceAll(string(n.Kind), "_", " "))
	}
	return sb.String()
}
