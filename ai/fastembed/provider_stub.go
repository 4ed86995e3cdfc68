//go:build !fastembed

package fastembed

import "github.com/cyclicism/crunch/ai"

// Available reports whether the binary was built with local embedding support.
const Available = false

// NewProvider always fails; rebuild with -tags fastembed for local models.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	return nil, ErrNotBuilt
}
