package web

import (
	"bytes"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/decode"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/metrics"
	"github.com/hpungsan/cpetrack/internal/ops"
)

const (
	// multipartOverhead is allowed on top of MaxUploadBytes for form framing.
	multipartOverhead = 64 << 10

	// multipartMemory is held in memory before parts spill to temp files.
	multipartMemory = 8 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	x        *ops.Extraction
	metrics  *metrics.Manager
	renderer *Renderer
	now      func() time.Time
}

// HandleDashboard handles GET / with progress, entries and the add form.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, DashboardPageData{Form: h.blankForm()})
}

// HandleAdd handles POST /entries.
func (h *Handlers) HandleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	form := EntryForm{
		Date:        strings.TrimSpace(r.FormValue("date")),
		Hours:       strings.TrimSpace(r.FormValue("hours")),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		SourceFile:  strings.TrimSpace(r.FormValue("source_file")),
	}

	hours, err := strconv.ParseFloat(form.Hours, 64)
	if err != nil {
		h.addFailed(w, r, form, errors.NewInvalidRequest("hours must be a number"))
		return
	}

	source := entry.SourceManual
	if form.SourceFile != "" {
		source = entry.SourceCertificate
	}
	out, err := ops.Add(r.Context(), h.db, h.cfg, ops.AddInput{
		Date:        form.Date,
		Hours:       hours,
		Category:    form.Category,
		Description: form.Description,
		Source:      source,
		SourceFile:  form.SourceFile,
	})
	if err != nil {
		h.addFailed(w, r, form, err)
		return
	}
	h.metrics.RecordEntryAdded(string(source))

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, out)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// addFailed shows a rejected form again with its values and the reason.
func (h *Handlers) addFailed(w http.ResponseWriter, r *http.Request, form EntryForm, err error) {
	if wantsJSON(r) || !errors.Is(err, errors.ErrInvalidRequest) {
		h.renderer.renderError(w, r, err)
		return
	}
	cErr, _ := errors.As(err)
	h.renderDashboard(w, r, http.StatusBadRequest, DashboardPageData{Form: form, Error: cErr.Message})
}

// HandleDelete handles POST /entries/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleClear handles POST /entries/clear. It soft-deletes every entry and
// requires confirm=true.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(`confirm parameter must be "true"`))
		return
	}

	result, err := ops.Clear(r.Context(), h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleExtract handles POST /extract, a multipart upload of one certificate
// in the "certificate" field. Extracted fields prefill the add form; when
// nothing usable is found the decoded text is shown for manual entry.
func (h *Handlers) HandleExtract(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		h.extractFailed(w, r, err)
		return
	}

	x, err := h.x.ForMode(h.cfg, r.FormValue("policy"))
	if err != nil {
		h.extractFailed(w, r, err)
		return
	}

	out, err := x.ExtractFile(r.Context(), ops.ExtractFileInput{Name: name, Data: data})
	if wantsJSON(r) {
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, out)
		return
	}

	if err != nil {
		cErr, ok := errors.As(err)
		if !ok || cErr.Code != errors.ErrExtractionFailed {
			h.extractFailed(w, r, err)
			return
		}
		raw, _ := cErr.Details["raw_text"].(string)
		form := h.blankForm()
		form.SourceFile = name
		h.renderDashboard(w, r, cErr.Status, DashboardPageData{
			Form:    form,
			Notice:  fmt.Sprintf("Could not extract CPE details from %s. Enter them below.", name),
			RawText: raw,
		})
		return
	}

	h.renderDashboard(w, r, http.StatusOK, DashboardPageData{
		Form: EntryForm{
			Date:        out.Fields.Date,
			Hours:       formatHours(out.Fields.Hours),
			Category:    string(out.Fields.Category),
			Description: out.Fields.Description,
			SourceFile:  name,
		},
		Notice: fmt.Sprintf("Extracted from %s. Review the fields and save.", name),
	})
}

// extractFailed reports upload and decode errors on the dashboard.
func (h *Handlers) extractFailed(w http.ResponseWriter, r *http.Request, err error) {
	cErr, ok := errors.As(err)
	if wantsJSON(r) || !ok || cErr.Code == errors.ErrInternal {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderDashboard(w, r, cErr.Status, DashboardPageData{Form: h.blankForm(), Error: cErr.Message})
}

// readUpload returns the uploaded certificate, enforcing MaxUploadBytes.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := h.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return "", nil, errors.NewFileTooLarge(limit, r.ContentLength)
		}
		return "", nil, errors.NewInvalidRequest("invalid upload")
	}

	file, header, err := r.FormFile("certificate")
	if err != nil {
		return "", nil, errors.NewInvalidRequest("certificate file is required")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !decode.SupportedExt(name) {
		return "", nil, errors.NewInvalidRequest("only .pdf and .txt certificates are supported")
	}
	if header.Size > limit {
		return "", nil, errors.NewFileTooLarge(limit, header.Size)
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", nil, errors.NewFileTooLarge(limit, header.Size)
	}
	return name, data, nil
}

// HandleReport handles GET /report, the markdown progress report as HTML.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Report(r.Context(), h.db, h.cfg, ops.ReportInput{Now: h.now()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, result.Markdown)
		return
	}

	h.renderer.renderPage(w, r, http.StatusOK, "report", ReportPageData{
		PageData: h.renderer.page("Report", "report"),
		HTML:     renderMarkdown(result.Markdown),
	})
}

// HandleExportXLSX handles GET /export.xlsx, a workbook download of active entries.
func (h *Handlers) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	var buf bytes.Buffer
	n, err := ops.Workbook(r.Context(), h.db, h.cfg, &buf, now)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Debug(r.Context(), "workbook exported", zap.Int("entries", n))

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cpe-entries-%s.xlsx"`, now.Format("20060102")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.renderer.version})
}

// renderDashboard fills progress and the entry page into data and renders it.
func (h *Handlers) renderDashboard(w http.ResponseWriter, r *http.Request, status int, data DashboardPageData) {
	progress, err := ops.Progress(r.Context(), h.db, h.cfg, ops.ProgressInput{Now: h.now()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	list, err := ops.List(r.Context(), h.db, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.MaxListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.PageData = h.renderer.page("Dashboard", "dashboard")
	data.Progress = progress
	data.Entries = list.Items
	data.Pagination = list.Pagination
	data.Categories = entry.Categories
	h.renderer.renderPage(w, r, status, "dashboard", data)
}

func (h *Handlers) blankForm() EntryForm {
	return EntryForm{
		Date:     h.now().Format(entry.DateLayout),
		Category: string(entry.CategoryTechnical),
	}
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
