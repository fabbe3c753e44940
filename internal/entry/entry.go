package entry

import "time"

// DateLayout is the canonical calendar date format for entries (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// Category is the closed set of CPE subject categories.
type Category string

const (
	CategoryEthics             Category = "Ethics"
	CategoryTechnical          Category = "Technical"
	CategoryProfessionalSkills Category = "Professional Skills"
	CategoryBusiness           Category = "Business"
	CategoryOther              Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryEthics,
	CategoryTechnical,
	CategoryProfessionalSkills,
	CategoryBusiness,
	CategoryOther,
}

// Source records how an entry was created.
type Source string

const (
	SourceManual      Source = "manual"
	SourceCertificate Source = "certificate"
	SourceImport      Source = "import"
)

// Entry is one persisted block of completed CPE hours.
type Entry struct {
	// ID is a ULID that uniquely identifies this entry
	ID string `json:"id"`

	// Date is the completion date (YYYY-MM-DD)
	Date string `json:"date"`

	// Hours is the credit-hour quantity, always > 0
	Hours float64 `json:"hours"`

	Category    Category `json:"category"`
	Description string   `json:"description"`

	// Source indicates where the entry originated
	Source Source `json:"source"`

	// SourceFile is the certificate file name the entry was extracted from (nullable)
	SourceFile *string `json:"source_file,omitempty"`

	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// Year returns the calendar year of the entry date, or 0 if the date is malformed.
func (e *Entry) Year() int {
	t, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return 0
	}
	return t.Year()
}
