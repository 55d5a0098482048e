package repositories

import "time"

// DefaultOpenedIndexLimit bounds opened-group aggregation when no limit is configured.
const DefaultOpenedIndexLimit = 10

// Options configures a notification repository.
type Options struct {
	// OpenedIndexLimit caps the opened index and the opened group member counts.
	OpenedIndexLimit int
	// GroupExpiryDelay limits how old an owner may be to still absorb new members.
	// Zero means owners never expire.
	GroupExpiryDelay time.Duration
	// Loaders resolve polymorphic references for eager loading.
	Loaders EntityLoaders
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.OpenedIndexLimit <= 0 {
		o.OpenedIndexLimit = DefaultOpenedIndexLimit
	}
	if o.Loaders == nil {
		o.Loaders = EntityLoaders{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
