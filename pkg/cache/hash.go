package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the xxhash64 digest of data as 16 hex digits. FileCache
// names its entries with it.
func Hash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
