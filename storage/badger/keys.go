package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/cyclicism/crunch/core"
	"github.com/google/uuid"
)

// Key prefixes for different data types
const (
	collectionPrefix  = "col"
	vectorPrefix      = "vec"
	articlePrefix     = "art"
	articleDatePrefix = "artd"
	comboPrefix       = "cmb"
	comboSeq          = "cmbseq"
	currentPrefix     = "cur"
	checkpointPrefix  = "chkpt"
)

// makeCollectionKey generates the key holding a collection's dimensions.
func makeCollectionKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, name))
}

// makeVectorPrefix generates the scan prefix for one collection's points.
func makeVectorPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", vectorPrefix, collection))
}

// makeVectorKey generates the key for one point.
// Format: prefix:collection:uuid
func makeVectorKey(collection string, id uuid.UUID) []byte {
	return append(makeVectorPrefix(collection), id[:]...)
}

// makeArticleKey generates the key for an article by URI.
func makeArticleKey(uri string) []byte {
	return []byte(fmt.Sprintf("%s:%s", articlePrefix, uri))
}

// makeArticleDatePrefix generates the scan prefix for one day of the
// contemporary date index.
// Format: prefix:yyyymmdd:
func makeArticleDatePrefix(year, month, day int) []byte {
	return []byte(fmt.Sprintf("%s:%04d%02d%02d:", articleDatePrefix, year, month, day))
}

// makeArticleDateKey generates a date index entry.
// Format: prefix:yyyymmdd:uri
func makeArticleDateKey(year, month, day int, uri string) []byte {
	return append(makeArticleDatePrefix(year, month, day), uri...)
}

// makeComboPrefix generates the scan prefix for the edges of one
// contemporary article.
// Format: prefix:contentID
func makeComboPrefix(contemporaryURI string) []byte {
	prefix := comboPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(contemporaryURI)))
	return buf
}

// makeComboKey generates a key for one edge. The sequence number keeps
// repeated edges distinct and in insertion order.
// Format: prefix:contentID:seq
func makeComboKey(contemporaryURI string, seq uint64) []byte {
	prefix := makeComboPrefix(contemporaryURI)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeCurrentKey generates a key for one rank of the current snapshot.
func makeCurrentKey(rank int) []byte {
	prefix := currentPrefix + ":"
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], uint32(rank))
	return buf
}

// makeCheckpointPrefix generates the scan prefix for one job's checkpoints.
func makeCheckpointPrefix(job string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", checkpointPrefix, job))
}

// makeCheckpointKey generates the key marking a partition complete for a job.
func makeCheckpointKey(job string, key core.PartitionKey) []byte {
	return append(makeCheckpointPrefix(job), key.String()...)
}
