package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	x   *ops.Extraction
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, x *ops.Extraction) *Handlers {
	return &Handlers{db: db, cfg: cfg, x: x}
}

// AddRequest represents the arguments for cpe_add.
type AddRequest struct {
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	SourceFile  string  `json:"source_file,omitempty"`
}

// GetRequest represents the arguments for cpe_get.
type GetRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// UpdateRequest represents the arguments for cpe_update.
type UpdateRequest struct {
	ID          string   `json:"id"`
	Date        *string  `json:"date,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	SourceFile  *string  `json:"source_file,omitempty"`
}

// DeleteRequest represents the arguments for cpe_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for cpe_list.
type ListRequest struct {
	Year     int    `json:"year,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// ExtractRequest represents the arguments for cpe_extract.
type ExtractRequest struct {
	Text    string `json:"text,omitempty"`
	Path    string `json:"path,omitempty"`
	Policy  string `json:"policy,omitempty"`
	Explain bool   `json:"explain,omitempty"`
}

// IngestRequest represents the arguments for cpe_ingest.
type IngestRequest struct {
	Path        string   `json:"path"`
	Date        *string  `json:"date,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	Policy      string   `json:"policy,omitempty"`
}

// ProgressRequest represents the arguments for cpe_progress.
type ProgressRequest struct {
	Markdown bool `json:"markdown,omitempty"`
}

// ExportRequest represents the arguments for cpe_export.
type ExportRequest struct {
	Path           string `json:"path,omitempty"`
	Format         string `json:"format,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ImportRequest represents the arguments for cpe_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// PurgeRequest represents the arguments for cpe_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// HandleAdd handles the cpe_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Add(ctx, h.db, h.cfg, ops.AddInput{
		Date:        input.Date,
		Hours:       input.Hours,
		Category:    input.Category,
		Description: input.Description,
		SourceFile:  input.SourceFile,
	})
	if err != nil {
		return errorResult(err), nil
	}
	h.x.Metrics.RecordEntryAdded(string(result.Entry.Source))

	return successResult(result)
}

// HandleGet handles the cpe_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Get(ctx, h.db, ops.GetInput{ID: input.ID, IncludeDeleted: input.IncludeDeleted})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUpdate handles the cpe_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Update(ctx, h.db, h.cfg, ops.UpdateInput{
		ID:          input.ID,
		Date:        input.Date,
		Hours:       input.Hours,
		Category:    input.Category,
		Description: input.Description,
		SourceFile:  input.SourceFile,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the cpe_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the cpe_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Year:     input.Year,
		Category: input.Category,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExtract handles the cpe_extract tool call. Exactly one of text and
// path must be given. A miss on text is a successful result with found=false;
// a miss on a file is an EXTRACTION_FAILED error carrying raw_text.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if (input.Text == "") == (input.Path == "") {
		return errorResult(errors.NewInvalidRequest("exactly one of text or path is required")), nil
	}

	x, err := h.x.ForMode(h.cfg, input.Policy)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Path != "" {
		if err := ops.ValidatePath(input.Path, ops.PathCheckCertificate, h.cfg); err != nil {
			return errorResult(err), nil
		}
	}

	var result *ops.ExtractOutput
	if input.Text != "" {
		result, err = x.ExtractText(ctx, ops.ExtractTextInput{Text: input.Text, Explain: input.Explain})
	} else {
		result, err = x.ExtractFile(ctx, ops.ExtractFileInput{Path: input.Path, Explain: input.Explain})
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIngest handles the cpe_ingest tool call. Agent-supplied paths go
// through the same allow-list as import and export.
func (h *Handlers) HandleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IngestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := ops.ValidatePath(input.Path, ops.PathCheckCertificate, h.cfg); err != nil {
		return errorResult(err), nil
	}

	x, err := h.x.ForMode(h.cfg, input.Policy)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := x.Ingest(ctx, h.db, h.cfg, ops.IngestInput{
		Path:        input.Path,
		Date:        input.Date,
		Hours:       input.Hours,
		Category:    input.Category,
		Description: input.Description,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProgress handles the cpe_progress tool call.
func (h *Handlers) HandleProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgressRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.Markdown {
		result, err := ops.Report(ctx, h.db, h.cfg, ops.ReportInput{})
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	result, err := ops.Progress(ctx, h.db, h.cfg, ops.ProgressInput{})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the cpe_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:           input.Path,
		Format:         ops.ExportFormat(input.Format),
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the cpe_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the cpe_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// IsError is set so clients treat it as a tool failure. Details of INTERNAL
// errors are withheld; they can carry file paths and SQL text.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": "an internal error occurred",
		"status":  500,
	}
	if cErr, ok := errors.As(err); ok {
		errorObj["code"] = string(cErr.Code)
		errorObj["status"] = cErr.Status
		if cErr.Code != errors.ErrInternal {
			errorObj["message"] = cErr.Message
			if err != error(cErr) {
				// keep the wrapping context
				errorObj["message"] = err.Error()
			}
			if cErr.Details != nil {
				errorObj["details"] = cErr.Details
			}
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
