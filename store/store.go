package store

import "context"

// Store is the facade every caller goes through. It is a plain
// delegator over the active Driver and holds no state of its own; all
// synchronization lives inside the driver (RWMutex, connection pool,
// or serialized connection), so callers never take locks of their own.
type Store struct {
	driver Driver
}

// New wraps a driver in the Store facade.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate creates or upgrades the backend schema via the active driver.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
