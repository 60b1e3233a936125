package timezone

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// SetLocation pins the location used by Now. The portal renders and accepts
// dates in its own timezone, which is not necessarily the host's.
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location.Store(loc)
	return nil
}

func Location() *time.Location {
	return location.Load()
}

func Now() time.Time {
	return time.Now().In(Location())
}

// In converts t into the pinned location.
func In(t time.Time) time.Time {
	return t.In(Location())
}
