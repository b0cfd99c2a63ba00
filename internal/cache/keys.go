package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
)

// =============================================================================
// 🔑 键命名与版本化失效
// =============================================================================

// Family groups related keys so an entire family can be invalidated
// at once by bumping its version, without a Redis SCAN over the
// keyspace (see Substrate.InvalidateFamily).
type Family string

const (
	FamilySession  Family = "session"
	FamilyMessages Family = "messages"
	FamilyProfile  Family = "profile"
	FamilyFacts    Family = "facts"
	FamilyVector   Family = "vector"
)

// versions holds the current version counter per family, in-process.
// A restart resets versions to 1; that is acceptable since stale
// entries from a previous version simply age out of L1/L2 by TTL.
type versionTable struct {
	mu       sync.Mutex
	versions map[Family]int
}

var globalVersions = &versionTable{versions: make(map[Family]int)}

func (vt *versionTable) get(f Family) int {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	v, ok := vt.versions[f]
	if !ok {
		vt.versions[f] = 1
		return 1
	}
	return v
}

func (vt *versionTable) bump(f Family) int {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	vt.versions[f]++
	return vt.versions[f]
}

// BuildKey constructs a versioned cache key of the form
// "<family>:<subject>:<version>:<hash>". Bumping the family's version
// via BumpFamily makes every previously built key for that family
// unreachable without needing to enumerate or delete them.
func BuildKey(family Family, subject string, parts ...string) string {
	version := globalVersions.get(family)
	h := sha256.New()
	h.Write([]byte(subject))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	hash := hex.EncodeToString(h.Sum(nil))[:16]
	return fmt.Sprintf("%s:%s:%s:%s", family, subject, strconv.Itoa(version), hash)
}

// BumpFamily increments a family's version, invalidating every key
// previously built for it in a single in-process counter update.
func BumpFamily(family Family) int {
	return globalVersions.bump(family)
}
