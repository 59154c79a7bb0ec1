package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// DefaultCacheCapacity bounds the response cache.
	DefaultCacheCapacity = 100
	// DefaultEvictBatch entries are dropped in one batch on overflow,
	// oldest-inserted first. Deliberately not LRU: access order is ignored.
	DefaultEvictBatch = 20
	// cacheKeyContextBytes of document context participate in the key.
	cacheKeyContextBytes = 500
)

// CachedResponse is a formatted answer kept for repeat questions.
type CachedResponse struct {
	FormattedResponse string         `json:"formatted_response"`
	RawResponse       string         `json:"raw_response"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// responseCache is a bounded map with insertion-order batch eviction.
type responseCache struct {
	entries   map[string]CachedResponse
	order     []string
	capacity  int
	batch     int
	evictions int64
}

func newResponseCache(capacity, batch int) *responseCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if batch <= 0 || batch > capacity {
		batch = DefaultEvictBatch
	}
	return &responseCache{
		entries:  make(map[string]CachedResponse, capacity),
		capacity: capacity,
		batch:    batch,
	}
}

func (rc *responseCache) get(key string) (CachedResponse, bool) {
	v, ok := rc.entries[key]
	return v, ok
}

// put inserts a response. When the capacity is exceeded, the batch
// oldest-inserted entries are evicted in one sweep.
func (rc *responseCache) put(key string, resp CachedResponse) {
	if _, exists := rc.entries[key]; !exists {
		rc.order = append(rc.order, key)
	}
	rc.entries[key] = resp

	if len(rc.entries) > rc.capacity {
		evict := rc.order[:rc.batch]
		for _, k := range evict {
			delete(rc.entries, k)
		}
		rc.order = rc.order[rc.batch:]
		rc.evictions += int64(len(evict))
	}
}

func (rc *responseCache) len() int { return len(rc.entries) }

func (rc *responseCache) clear() {
	rc.entries = make(map[string]CachedResponse, rc.capacity)
	rc.order = nil
}

// cacheKey is a deterministic hash of the normalized message plus the first
// 500 bytes of the document context.
func cacheKey(message, docContext string) string {
	content := message
	if docContext != "" {
		if len(docContext) > cacheKeyContextBytes {
			docContext = docContext[:cacheKeyContextBytes]
		}
		content += docContext
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
