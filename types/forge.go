package types

import "encoding/json"

// ForgeUpdate is the update-check document the Forge loader polls for a mod.
// Changelogs are keyed by minecraft version, then by mod version, and sit at
// the top level of the document next to homepage and promos.
type ForgeUpdate struct {
	Homepage   string
	Promos     map[string]string
	Changelogs map[string]map[string]string
}

func (f ForgeUpdate) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(f.Changelogs)+2)
	for minecraft, changelogs := range f.Changelogs {
		doc[minecraft] = changelogs
	}
	promos := f.Promos
	if promos == nil {
		promos = map[string]string{}
	}
	doc["homepage"] = f.Homepage
	doc["promos"] = promos
	return json.Marshal(doc)
}
