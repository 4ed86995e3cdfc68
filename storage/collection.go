package storage

import (
	"fmt"
	"strings"
)

// DistanceCosine is the only metric the stores use.
const DistanceCosine = "Cosine"

// CollectionName names the vector collection for one embedded field and
// model, so indexes built with different settings never mix. Slashes in
// model names are not valid in collection names and become underscores.
func CollectionName(field, model, distance string) string {
	model = strings.ReplaceAll(model, "/", "_")
	return fmt.Sprintf("%s___%s___%s", field, model, distance)
}
