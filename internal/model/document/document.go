package document

import "time"

// Status mirrors the lifecycle flag the catalog backend exposes.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDraft    Status = "draft"
)

// Document is the metadata record the catalog returns for one constitution file.
// Not every backend variant populates every field.
type Document struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Filename  string     `json:"filename,omitempty"`
	Year      *int       `json:"year,omitempty"`
	Status    Status     `json:"status,omitempty"`
	FileSize  *int64     `json:"file_size,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Seed provides the catalog served when no remote list endpoint is configured.
func Seed() []Document {
	year2020 := 2020
	year2010 := 2010
	size2020 := int64(1_482_311)
	size2010 := int64(903_552)
	return []Document{
		{
			ID:       1,
			Title:    "Constitution de la République de Guinée",
			Filename: "constitution-guinee-2020.pdf",
			Year:     &year2020,
			Status:   StatusActive,
			FileSize: &size2020,
		},
		{
			ID:       2,
			Title:    "Constitution de la République de Guinée (ancienne version)",
			Filename: "constitution-guinee-2010.pdf",
			Year:     &year2010,
			Status:   StatusArchived,
			FileSize: &size2010,
		},
	}
}
