// Package templates renders the notification emails from embedded HTML templates.
package templates

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

//go:embed html/*.html
var files embed.FS

const layoutFile = "html/layout.html"

// Renderer executes the named email templates. It is safe for concurrent use.
type Renderer struct {
	templates map[string]*template.Template
}

var _ ports.TemplateRenderer = (*Renderer)(nil)

// NewRenderer parses every known template together with the shared layout.
// Issue, comment and note bodies arrive as HTML from producers and are passed
// through a user-content policy before they reach a template.
func NewRenderer() (*Renderer, error) {
	policy := bluemonday.UGCPolicy()
	funcs := template.FuncMap{
		"safe": func(s string) template.HTML {
			return template.HTML(policy.Sanitize(s)) //nolint:gosec
		},
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range []string{domain.TemplateCommentAdded, domain.TemplateNoteAdded} {
		tmpl, err := template.New(name + ".html").Funcs(funcs).ParseFS(files, layoutFile, "html/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the template called name against data.
func (r *Renderer) Render(ctx context.Context, name string, data domain.TemplateData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown template %q", apperrors.ErrRenderFailed, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrRenderFailed, name, err)
	}
	return buf.String(), nil
}
