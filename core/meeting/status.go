package meeting

import (
	"regexp"
	"time"
)

// joinLinkRegex accepts https links on the usual conferencing hosts.
var joinLinkRegex = regexp.MustCompile(
	`^https://(meet\.google\.com|([a-z0-9-]+\.)?zoom\.us|teams\.microsoft\.com|[a-z0-9-]+\.webex\.com)/\S+$`)

// DeriveStatus computes a meeting's lifecycle state from the clock.
// It is a pure function, evaluated lazily at the start of every read and
// before every persist; there is no background scheduler driving transitions.
//
//	start <= now <= end  &&  stored == scheduled           -> live
//	now > end            &&  stored is scheduled or live   -> completed
//
// cancelled and completed are terminal: re-derivation is a no-op. A meeting
// observed only after its window skips the live state; derivation being lazy,
// that is expected.
func DeriveStatus(now, scheduledAt time.Time, durationMins int, stored Status) Status {
	if stored.IsTerminal() {
		return stored
	}
	end := scheduledAt.Add(time.Duration(durationMins) * time.Minute)
	switch {
	case now.After(end):
		return StatusCompleted
	case !now.Before(scheduledAt): // now >= start
		return StatusLive
	default:
		return StatusScheduled
	}
}
