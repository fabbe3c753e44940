package entry

// ExportRecord represents an entry record in JSONL export format.
// It is used for parsing export files during import.
type ExportRecord struct {
	// Header detection field - true only for header line
	CPEExport bool `json:"_cpetrack_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	// Entry fields
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	SourceFile  *string `json:"source_file"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
	DeletedAt   *int64  `json:"deleted_at"`
}

// ToEntry converts an ExportRecord to an Entry, canonicalizing category and description.
// Unknown categories become Other; records are validated before this is called.
func (r *ExportRecord) ToEntry() *Entry {
	cat, ok := ParseCategory(r.Category)
	if !ok {
		cat = CategoryOther
	}
	src := Source(r.Source)
	if src == "" {
		src = SourceImport
	}
	return &Entry{
		ID:          r.ID,
		Date:        r.Date,
		Hours:       r.Hours,
		Category:    cat,
		Description: NormalizeDescription(r.Description),
		Source:      src,
		SourceFile:  r.SourceFile,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   r.DeletedAt,
	}
}

// ToExportRecord converts an Entry to an ExportRecord for export.
func ToExportRecord(e *Entry) *ExportRecord {
	return &ExportRecord{
		ID:          e.ID,
		Date:        e.Date,
		Hours:       e.Hours,
		Category:    string(e.Category),
		Description: e.Description,
		Source:      string(e.Source),
		SourceFile:  e.SourceFile,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		DeletedAt:   e.DeletedAt,
	}
}
