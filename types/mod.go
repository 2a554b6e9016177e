package types

// Mod represents a catalog entry.
type Mod struct {
	// ID is the unique slug of the mod.
	ID string `json:"id" db:"id"`

	// Name is the human-readable name of the mod.
	Name string `json:"name" db:"name"`

	// URL points at the mod's homepage.
	URL string `json:"url" db:"url"`
}

// Loader identifies the mod loader a version targets.
type Loader string

const (
	LoaderForge      Loader = "forge"
	LoaderFabric     Loader = "fabric"
	LoaderRift       Loader = "rift"
	LoaderLiteLoader Loader = "liteloader"
	LoaderQuilt      Loader = "quilt"
)

// Valid reports whether l is a supported loader.
func (l Loader) Valid() bool {
	switch l {
	case LoaderForge, LoaderFabric, LoaderRift, LoaderLiteLoader, LoaderQuilt:
		return true
	}
	return false
}

// Side identifies where a dependency must be installed.
type Side string

const (
	SideClient Side = "CLIENT"
	SideServer Side = "SERVER"
	SideBoth   Side = "BOTH"
)

// Valid reports whether s is a supported side.
func (s Side) Valid() bool {
	return s == SideClient || s == SideServer || s == SideBoth
}

// Version is a released build of a mod for one minecraft version and loader.
// (Mod, ID, Minecraft, Loader) is unique.
type Version struct {
	ID           string       `json:"id" db:"id"`
	Mod          string       `json:"mod" db:"mod"`
	Name         string       `json:"name" db:"name"`
	URL          string       `json:"url" db:"url"`
	Minecraft    string       `json:"minecraft" db:"minecraft"`
	Recommended  bool         `json:"recommended" db:"recommended"`
	Changelog    string       `json:"changelog" db:"changelog"`
	Loader       Loader       `json:"loader" db:"loader"`
	Dependencies []Dependency `json:"dependencies" db:"dependencies"`
}

// Dependency is another mod a version requires or supports.
type Dependency struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Required bool   `json:"required"`
	Side     Side   `json:"side"`
	Version  string `json:"version"`
}

// VersionKey addresses a single version of a mod.
type VersionKey struct {
	Mod       string
	ID        string
	Minecraft string
	Loader    Loader
}

// Key returns the identifying tuple of v.
func (v Version) Key() VersionKey {
	return VersionKey{Mod: v.Mod, ID: v.ID, Minecraft: v.Minecraft, Loader: v.Loader}
}
