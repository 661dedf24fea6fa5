package swim

import (
	"github.com/spaolacci/murmur3"
)

const DefaultUriCacheSize = 32

type uriCacheEntry struct {
	unresolved string
	resolved   string
}

// UriCache memoizes resolve and unresolve against a fixed base uri.
// Each direction has `size` buckets keyed by a murmur3 hash of the input. A bucket holds one
// pair and is overwritten on collision.
type UriCache struct {
	baseUri string
	size    int

	resolveCache   []*uriCacheEntry
	unresolveCache []*uriCacheEntry
}

func NewUriCacheWithDefaults(baseUri string) *UriCache {
	return NewUriCache(baseUri, DefaultUriCacheSize)
}

func NewUriCache(baseUri string, size int) *UriCache {
	if size <= 0 {
		size = DefaultUriCacheSize
	}
	return &UriCache{
		baseUri:        baseUri,
		size:           size,
		resolveCache:   make([]*uriCacheEntry, size),
		unresolveCache: make([]*uriCacheEntry, size),
	}
}

func (self *UriCache) BaseUri() string {
	return self.baseUri
}

func (self *UriCache) bucket(uri string) int {
	return int(murmur3.Sum32([]byte(uri)) % uint32(self.size))
}

func (self *UriCache) Resolve(unresolvedUri string) string {
	i := self.bucket(unresolvedUri)
	if entry := self.resolveCache[i]; entry != nil && entry.unresolved == unresolvedUri {
		return entry.resolved
	}
	resolvedUri := ResolveUri(self.baseUri, unresolvedUri)
	self.resolveCache[i] = &uriCacheEntry{
		unresolved: unresolvedUri,
		resolved:   resolvedUri,
	}
	return resolvedUri
}

func (self *UriCache) Unresolve(resolvedUri string) string {
	i := self.bucket(resolvedUri)
	if entry := self.unresolveCache[i]; entry != nil && entry.resolved == resolvedUri {
		return entry.unresolved
	}
	unresolvedUri := UnresolveUri(self.baseUri, resolvedUri)
	self.unresolveCache[i] = &uriCacheEntry{
		unresolved: unresolvedUri,
		resolved:   resolvedUri,
	}
	return unresolvedUri
}
