// Package clock renders the time left on a campaign. It is display only;
// the store decides expiry against the database clock.
package clock

import (
	"context"
	"fmt"
	"time"
)

type Countdown struct {
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Expired bool  `json:"expired"`
}

// Remaining splits expiresAt-now into whole hours, minutes and seconds.
// Hours are not wrapped at 24.
func Remaining(expiresAt, now time.Time) Countdown {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return Countdown{Expired: true}
	}
	secs := int64(diff / time.Second)
	return Countdown{
		Hours:   secs / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (c Countdown) String() string {
	if c.Expired {
		return "Expired"
	}
	return fmt.Sprintf("%dh %dm %ds", c.Hours, c.Minutes, c.Seconds)
}

// Ticker emits the countdown immediately and then every interval. The channel
// is closed after the Expired value is sent or when ctx is done.
func Ticker(ctx context.Context, expiresAt time.Time, interval time.Duration) <-chan Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan Countdown, 1)

	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			c := Remaining(expiresAt, time.Now())
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if c.Expired {
				return
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
