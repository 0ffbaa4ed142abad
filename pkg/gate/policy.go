package gate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// artifactJSON is the wire shape written by the policy compiler. The gate
// deliberately decodes it with its own type: the generated source file is
// the only coupling between the administrative tool and the gate.
type artifactJSON struct {
	APIKeys     []string    `json:"api_keys"`
	PublicFiles []string    `json:"public_files"`
	Grants      [][2]string `json:"grants"`
}

// Policy is an immutable allow/deny decision table. Once built it is only
// read, so it is safe for any number of concurrent requests.
type Policy struct {
	version   string
	validKeys map[string]struct{}
	public    map[string]struct{}
	grants    map[string]map[string]struct{}
}

// DenyAll is the fail-closed policy: no key validates, nothing is granted.
func DenyAll() *Policy {
	return &Policy{
		validKeys: map[string]struct{}{},
		public:    map[string]struct{}{},
		grants:    map[string]map[string]struct{}{},
	}
}

// ParsePolicy decodes a compiled artifact. Callers that cannot surface the
// error must fall back to DenyAll, never to an allow.
func ParsePolicy(data []byte) (*Policy, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed policy artifact: %w", err)
	}

	p := DenyAll()
	for _, key := range raw.APIKeys {
		if key == "" {
			return nil, fmt.Errorf("malformed policy artifact: empty api key")
		}
		p.validKeys[key] = struct{}{}
	}
	for _, path := range raw.PublicFiles {
		p.public[path] = struct{}{}
	}
	for _, g := range raw.Grants {
		if g[0] == "" {
			return nil, fmt.Errorf("malformed policy artifact: grant with empty key")
		}
		paths, ok := p.grants[g[0]]
		if !ok {
			paths = map[string]struct{}{}
			p.grants[g[0]] = paths
		}
		paths[g[1]] = struct{}{}
	}

	return p, nil
}

// Authorize decides one request. The key must be a currently-valid key and
// the path must be either public or granted to that key. Paths are compared
// exactly, after stripping the URL's leading slash; no normalization.
func (p *Policy) Authorize(key string, path string) bool {
	if key == "" {
		return false
	}
	if _, ok := p.validKeys[key]; !ok {
		return false
	}

	path = strings.TrimPrefix(path, "/")
	if _, ok := p.public[path]; ok {
		return true
	}
	_, ok := p.grants[key][path]
	return ok
}

func (p *Policy) Version() string {
	return p.version
}

var (
	embeddedOnce   sync.Once
	embeddedPolicy *Policy
)

// Embedded returns the policy compiled into this binary via the generated
// policy_gen.go. A malformed artifact degrades to DenyAll with an error log;
// the gate never fails open.
func Embedded() *Policy {
	embeddedOnce.Do(func() {
		p, err := ParsePolicy([]byte(embeddedPolicyData))
		if err != nil {
			log.Error().Err(err).Msg("Embedded policy is malformed, denying all requests")
			embeddedPolicy = DenyAll()
			return
		}
		p.version = embeddedPolicyVersion
		embeddedPolicy = p
	})
	return embeddedPolicy
}
