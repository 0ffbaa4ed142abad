package policy

import (
	"encoding/json"
	"sort"

	"github.com/tantalor/netlify-file-server/pkg/storage/database/models"
)

// Artifact is the compiled decision data embedded in the request gate:
// every live API key, the set of public files, and one (key, path) pair per
// user grant. It is regenerated wholesale on every build and has no
// identity of its own beyond the version stamped into the generated source.
type Artifact struct {
	APIKeys     []string    `json:"api_keys"`
	PublicFiles []string    `json:"public_files"`
	Grants      [][2]string `json:"grants"`
}

// Export flattens a store snapshot into an artifact. User grants are keyed
// by the user's current API key so the gate needs no identifier lookup at
// request time. A grant referencing a missing user row is dropped: the gate
// must fail closed, and an unmatchable pair is the only safe rendering.
func Export(snap models.Snapshot) Artifact {
	rc := Artifact{
		APIKeys:     []string{},
		PublicFiles: []string{},
		Grants:      [][2]string{},
	}

	keyByUser := make(map[uint]string, len(snap.Users))
	for _, u := range snap.Users {
		keyByUser[u.ID] = u.APIKey
		rc.APIKeys = append(rc.APIKeys, u.APIKey)
	}

	for _, g := range snap.Grants {
		if g.IsPublic() {
			rc.PublicFiles = append(rc.PublicFiles, g.FilePath)
			continue
		}
		key, ok := keyByUser[*g.UserID]
		if !ok {
			continue
		}
		rc.Grants = append(rc.Grants, [2]string{key, g.FilePath})
	}

	// Deterministic output: building twice over an unchanged store yields
	// the same serialization.
	sort.Strings(rc.APIKeys)
	sort.Strings(rc.PublicFiles)
	sort.Slice(rc.Grants, func(i, j int) bool {
		if rc.Grants[i][0] != rc.Grants[j][0] {
			return rc.Grants[i][0] < rc.Grants[j][0]
		}
		return rc.Grants[i][1] < rc.Grants[j][1]
	})

	return rc
}

// JSON serializes the artifact in the wire shape the gate decodes.
func (a Artifact) JSON() ([]byte, error) {
	return json.Marshal(a)
}
