package types

// Redirect maps a short path on the site to an external URL.
type Redirect struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	URL  string `json:"url" db:"url"`

	// Path is stored without leading or trailing slashes and is unique.
	Path string `json:"path" db:"path"`
}
