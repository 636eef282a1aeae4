package ports

import "context"

// Storage persists sessions. Keys and values are strings, no transactions.
type Storage interface {
	// Write stores data at key, overwriting any existing value
	Write(ctx context.Context, key, data string) error

	// Read returns the data at key, found is false when the key does not exist
	Read(ctx context.Context, key string) (data string, found bool, err error)

	// Remove deletes key, removing a missing key is not an error
	Remove(ctx context.Context, key string) error
}
