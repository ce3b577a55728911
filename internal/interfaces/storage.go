package interfaces

import "time"

// Cache is a TTL key-value store. Entries expire lazily on read; refreshing
// a key overwrites rather than appends.
type Cache interface {
	// Get unmarshals the cached value into dest and reports whether a live
	// (non-expired) entry was found.
	Get(key string, dest any) bool

	// Set stores a value in memory only. Used for quote entries whose short
	// TTL makes disk writes a liability at poll cadence.
	Set(key string, value any, ttl time.Duration)

	// SetDurable stores a value and writes the whole cache through to disk.
	// Used for historical bar entries.
	SetDurable(key string, value any, ttl time.Duration) error

	// Flush persists the durable entries to disk.
	Flush() error

	// Close flushes and releases the cache.
	Close() error
}
