package types

import "time"

// CatalogExport is a point-in-time snapshot of the public catalog.
type CatalogExport struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Mods        []ModWithVersions `json:"mods"`
	Redirects   []Redirect        `json:"redirects"`
}

// ModWithVersions bundles a mod with every version it has.
type ModWithVersions struct {
	Mod
	Versions []Version `json:"versions"`
}

// ExportInfo describes a stored catalog export.
type ExportInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
