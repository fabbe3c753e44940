package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var addToolDef = mcp.NewTool("cpe_add",
	mcp.WithDescription("Record a CPE entry. Dates are YYYY-MM-DD; hours must be positive."),
	mcp.WithString("date", mcp.Required(), mcp.Description("Completion date, YYYY-MM-DD")),
	mcp.WithNumber("hours", mcp.Required(), mcp.Description("CPE hours earned")),
	mcp.WithString("category", mcp.Required(),
		mcp.Description("Ethics, Technical, Business, Professional Skills or Other (case-insensitive)")),
	mcp.WithString("description", mcp.Required(), mcp.Description("Course or event name")),
	mcp.WithString("source_file", mcp.Description("Certificate file name, if any")),
)

var getToolDef = mcp.NewTool("cpe_get",
	mcp.WithDescription("Fetch one CPE entry by ID."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithBoolean("include_deleted", mcp.Description("Return the entry even if soft-deleted")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var updateToolDef = mcp.NewTool("cpe_update",
	mcp.WithDescription("Change fields of an existing entry. Omitted fields are left as they are."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithString("date"),
	mcp.WithNumber("hours"),
	mcp.WithString("category"),
	mcp.WithString("description"),
	mcp.WithString("source_file"),
)

var deleteToolDef = mcp.NewTool("cpe_delete",
	mcp.WithDescription("Soft-delete an entry. It stops counting toward progress; cpe_purge removes it for good."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithDestructiveHintAnnotation(true),
)

var listToolDef = mcp.NewTool("cpe_list",
	mcp.WithDescription("List active entries, newest date first."),
	mcp.WithNumber("year", mcp.Description("Only entries dated in this calendar year")),
	mcp.WithString("category", mcp.Description("Only entries in this category")),
	mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
	mcp.WithNumber("offset"),
	mcp.WithReadOnlyHintAnnotation(true),
)

var extractToolDef = mcp.NewTool("cpe_extract",
	mcp.WithDescription("Extract date, hours, category and description from certificate text or a certificate file "+
		"(.pdf or .txt). Nothing is stored. When no fields are found the decoded text is returned as raw_text."),
	mcp.WithString("text", mcp.Description("Certificate text; use this or path")),
	mcp.WithString("path", mcp.Description("Absolute path to a certificate file; use this or text")),
	mcp.WithString("policy", mcp.Enum("strict", "lenient"), mcp.Description("Override the configured policy")),
	mcp.WithBoolean("explain", mcp.Description("Include which rule matched each field")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var ingestToolDef = mcp.NewTool("cpe_ingest",
	mcp.WithDescription("Extract a certificate file and store it as an entry. Given fields override extracted ones; "+
		"date and hours together are enough to store a certificate nothing could be extracted from."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to a .pdf or .txt certificate")),
	mcp.WithString("date"),
	mcp.WithNumber("hours"),
	mcp.WithString("category"),
	mcp.WithString("description"),
	mcp.WithString("policy", mcp.Enum("strict", "lenient")),
)

var progressToolDef = mcp.NewTool("cpe_progress",
	mcp.WithDescription("Progress toward the reporting-period requirement: totals, per-year minimums and per-category hours."),
	mcp.WithBoolean("markdown", mcp.Description("Also return a markdown report")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("cpe_export",
	mcp.WithDescription("Export entries to a .jsonl backup or an .xlsx workbook. "+
		"Defaults to ~/.cpetrack/exports; other directories must be listed in allowed_paths."),
	mcp.WithString("path", mcp.Description("Destination file; the extension picks the format")),
	mcp.WithString("format", mcp.Enum("jsonl", "xlsx")),
	mcp.WithBoolean("include_deleted", mcp.Description("JSONL only")),
)

var importToolDef = mcp.NewTool("cpe_import",
	mcp.WithDescription("Import entries from a .jsonl export. Mode error aborts on any bad record or ID collision; "+
		"replace overwrites colliding IDs; rename gives them new IDs."),
	mcp.WithString("path", mcp.Required()),
	mcp.WithString("mode", mcp.Enum("error", "replace", "rename")),
)

var purgeToolDef = mcp.NewTool("cpe_purge",
	mcp.WithDescription("Permanently remove soft-deleted entries."),
	mcp.WithNumber("older_than_days", mcp.Description("Only entries deleted more than this many days ago")),
	mcp.WithDestructiveHintAnnotation(true),
)
