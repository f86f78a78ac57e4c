package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type mosaicWidget struct {
	Address   string
	Namespace string
	Name      string
	Label     string
	Quantity  string
	Known     bool
}

// handleMosaicEmbed renders the mosaic balance of an account as an
// embeddable HTML fragment.
// GET /embed/mosaic?address=A&namespace=N&name=M&divisibility=D&label=L
func handleMosaicEmbed(renderer *TemplateRenderer, mosaics MosaicQuantifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseMosaicQuery(r.URL.Query().Get("address"), r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		label := r.URL.Query().Get("label")
		if label == "" {
			label = q.namespace + ":" + q.name
		}

		quantity := mosaics.Quantity(r.Context(), q.address, q.namespace, q.name, q.divisibility)
		data := mosaicWidget{
			Address:   q.address,
			Namespace: q.namespace,
			Name:      q.name,
			Label:     label,
			Quantity:  quantity.String(),
			Known:     quantity.Known,
		}
		if err := renderer.Render(w, "mosaic.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
