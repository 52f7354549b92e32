package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/aperture-oss/knowledge/core"
)

// Key prefixes for different data types
const (
	recordPrefix     = "embrec"
	collectionPrefix = "embcol"
	categoryPrefix   = "embcat"
)

// makeRecordKey generates a key for an embedding record by ID.
func makeRecordKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", recordPrefix, id))
}

// makeCollectionIndexKey generates a composite key for the collection index.
// Format: prefix:collectionID\x00id
// The NUL separator keeps collection IDs from bleeding into each other's
// prefix ranges; the ID is BigEndian so lexicographic sort is stable.
func makeCollectionIndexKey(collectionID string, id core.ID) []byte {
	buf := makeCollectionIndexPrefix(collectionID)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(id))
	return append(buf, idBytes...)
}

// makeCollectionIndexPrefix generates the iteration prefix for a collection.
func makeCollectionIndexPrefix(collectionID string) []byte {
	prefix := collectionPrefix + ":"
	buf := make([]byte, 0, len(prefix)+len(collectionID)+1+8)
	buf = append(buf, prefix...)
	buf = append(buf, collectionID...)
	buf = append(buf, 0x00)
	return buf
}

// makeCategoryIndexKey generates a composite key for the category index.
// Format: prefix:category\x00id
func makeCategoryIndexKey(category string, id core.ID) []byte {
	buf := makeCategoryIndexPrefix(category)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(id))
	return append(buf, idBytes...)
}

// makeCategoryIndexPrefix generates the iteration prefix for a category.
func makeCategoryIndexPrefix(category string) []byte {
	prefix := categoryPrefix + ":"
	buf := make([]byte, 0, len(prefix)+len(category)+1+8)
	buf = append(buf, prefix...)
	buf = append(buf, category...)
	buf = append(buf, 0x00)
	return buf
}
