package memory

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source used for lead creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
