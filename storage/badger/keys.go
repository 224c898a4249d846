package badger

import (
	"fmt"

	"github.com/krakenhq/kraken/core"
)

// Key prefixes for different data types
const (
	itemPrefix   = "item"
	cursorPrefix = "syncur"
	vectorPrefix = "embvec"
)

// makeItemKey generates a key for an item by its content-derived ID.
func makeItemKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", itemPrefix, id))
}

// makeCursorKey generates a key for a channel's sync cursor.
func makeCursorKey(channel string) []byte {
	return []byte(fmt.Sprintf("%s:%s", cursorPrefix, channel))
}

// makeVectorKey generates a key for a cached embedding vector.
func makeVectorKey(cacheKey string) []byte {
	return []byte(fmt.Sprintf("%s:%s", vectorPrefix, cacheKey))
}
