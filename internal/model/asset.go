package model

import "time"

// Asset categories. This is the canonical set; category values outside it are
// rejected at validation time.
const (
	Category3D        = "3D"
	CategoryAnimation = "animation"
	CategoryAudio     = "audio"
)

// Target engines. Engine is optional on an asset.
const (
	EngineUnity  = "Unity"
	EngineUnreal = "Unreal"
	EngineOther  = "Other"
)

// Licenses. License is optional on an asset.
const (
	LicenseCC0        = "CC0"
	LicenseCommercial = "commercial"
)

// Asset represents a downloadable creative file listed on the marketplace.
// Assets are created on upload and never updated or deleted.
type Asset struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Engine       string    `json:"engine,omitempty"`
	License      string    `json:"license,omitempty"`
	Price        float64   `json:"price"`
	FileURL      string    `json:"file_url"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// AssetFilter narrows an asset listing. Category and Engine match exactly;
// Search is a case-insensitive substring match on the title.
type AssetFilter struct {
	Category string
	Engine   string
	Search   string
}

// IsZero reports whether the filter applies no constraints.
func (f AssetFilter) IsZero() bool {
	return f.Category == "" && f.Engine == "" && f.Search == ""
}

// ValidCategory reports whether c is an accepted category.
func ValidCategory(c string) bool {
	switch c {
	case Category3D, CategoryAnimation, CategoryAudio:
		return true
	}
	return false
}

// ValidEngine reports whether e is an accepted engine. Empty is allowed
// because the field is optional.
func ValidEngine(e string) bool {
	switch e {
	case "", EngineUnity, EngineUnreal, EngineOther:
		return true
	}
	return false
}

// ValidLicense reports whether l is an accepted license. Empty is allowed
// because the field is optional.
func ValidLicense(l string) bool {
	switch l {
	case "", LicenseCC0, LicenseCommercial:
		return true
	}
	return false
}
