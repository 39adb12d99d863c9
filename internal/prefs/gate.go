package prefs

import (
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// Gate decides per recipient and channel whether delivery is currently
// permitted. DefaultAllow is the policy when no preference record exists:
// the product default is opt-out (allow), but it is a policy choice and so
// stays configurable rather than hard-coded.
type Gate struct {
	DefaultAllow bool
}

func NewGate(defaultAllow bool) *Gate {
	return &Gate{DefaultAllow: defaultAllow}
}

// Allowed applies, in order: unsubscribe list, channel toggle, per-channel
// category opt-outs, then the do-not-disturb window in the recipient's
// timezone.
func (g *Gate) Allowed(userID string, channel model.Channel, category string, pref *model.NotificationPreference, now time.Time) bool {
	if pref == nil {
		return g.DefaultAllow
	}

	if category != "" {
		for _, unsub := range pref.UnsubscribedFrom {
			if unsub == category {
				return false
			}
		}
	}

	if ch, ok := pref.Channels[channel]; ok {
		if !ch.Enabled {
			return false
		}
		if category != "" && ch.Categories != nil {
			if allowed, set := ch.Categories[category]; set && !allowed {
				return false
			}
		}
	}

	if inQuietHours(pref, now) {
		return false
	}
	return true
}

func inQuietHours(pref *model.NotificationPreference, now time.Time) bool {
	dnd := pref.DoNotDisturb
	if dnd == nil || !dnd.Enabled {
		return false
	}

	local := now
	if pref.Timezone != "" {
		if loc, err := time.LoadLocation(pref.Timezone); err == nil {
			local = now.In(loc)
		}
	}

	if len(dnd.Days) > 0 {
		match := false
		for _, d := range dnd.Days {
			if int(local.Weekday()) == d {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	start, ok1 := parseClock(dnd.Start)
	end, ok2 := parseClock(dnd.End)
	if !ok1 || !ok2 {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if end < start {
		// overnight window wrapping midnight, e.g. 22:00 -> 06:00
		return minute >= start || minute < end
	}
	return minute >= start && minute < end
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
