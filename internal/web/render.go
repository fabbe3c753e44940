package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "dashboard", "report"
}

// EntryForm holds the add-entry form values as typed or as prefilled from a
// certificate.
type EntryForm struct {
	Date        string
	Hours       string
	Category    string
	Description string
	SourceFile  string
}

// DashboardPageData is the template data for the dashboard.
type DashboardPageData struct {
	PageData
	Progress   *ops.ProgressOutput
	Entries    []entry.Entry
	Pagination ops.Pagination
	Categories []entry.Category
	Form       EntryForm
	Notice     string
	Error      string
	RawText    string
}

// ReportPageData is the template data for the rendered progress report.
type ReportPageData struct {
	PageData
	HTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *logging.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, log *logging.Logger) *Renderer {
	if log == nil {
		log = logging.Nop()
	}
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"hrs":        formatHours,
		"formatTime": formatTime,
		"deref":      deref,
		"str":        func(v any) string { return fmt.Sprint(v) },
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"dashboard": "dashboard.html",
		"report":    "report.html",
		"error":     "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       log,
	}
}

// page returns PageData for a page with the renderer's version.
func (r *Renderer) page(title, nav string) PageData {
	return PageData{Title: title, Version: r.version, Nav: nav}
}

// renderPage renders a named page template with the given data and HTTP status code.
// The page is rendered to a buffer first so a template error never sends a partial page.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error(req.Context(), "template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error(req.Context(), "template execution failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	cErr, ok := errors.As(err)
	if !ok {
		cErr = errors.NewInternal(err)
	}
	if cErr.Code == errors.ErrInternal {
		r.log.Error(req.Context(), "request failed", zap.String("path", req.URL.Path), zap.Error(err))
	}

	status := cErr.Status
	message := cErr.Message
	if cErr.Code == errors.ErrInternal {
		message = "an internal error occurred"
	}

	if wantsJSON(req) {
		body := map[string]any{
			"code":    string(cErr.Code),
			"message": message,
			"status":  status,
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			body["details"] = cErr.Details
		}
		renderJSON(w, status, map[string]any{"error": body})
		return
	}

	r.renderPage(w, req, status, "error", ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status), ""),
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

	// Report markdown carries user-entered descriptions.
	reportPolicy = bluemonday.UGCPolicy()
)

// renderMarkdown converts markdown to HTML with goldmark and sanitizes the result.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(reportPolicy.SanitizeBytes(buf.Bytes()))
}

// formatHours prints hours without trailing zeros: 2, 2.5, 0.25.
func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// deref dereferences a pointer, returning the zero value if nil.
func deref(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface()
		}
		return rv.Elem().Interface()
	}
	return v
}
