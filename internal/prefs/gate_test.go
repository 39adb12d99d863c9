package prefs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/prefs"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC) // a Tuesday
}

func TestMissingPreferenceRecord(t *testing.T) {
	allow := prefs.NewGate(true)
	deny := prefs.NewGate(false)

	assert.True(t, allow.Allowed("u1", model.ChannelEmail, "marketing", nil, at(12, 0)))
	assert.False(t, deny.Allowed("u1", model.ChannelEmail, "marketing", nil, at(12, 0)))
}

func TestUnsubscribedCategory(t *testing.T) {
	g := prefs.NewGate(true)
	pref := &model.NotificationPreference{
		UserID:           "u1",
		UnsubscribedFrom: []string{"marketing"},
	}

	assert.False(t, g.Allowed("u1", model.ChannelEmail, "marketing", pref, at(12, 0)))
	assert.True(t, g.Allowed("u1", model.ChannelEmail, "alerts", pref, at(12, 0)))
}

func TestChannelToggle(t *testing.T) {
	g := prefs.NewGate(true)
	pref := &model.NotificationPreference{
		UserID: "u1",
		Channels: map[model.Channel]model.ChannelPreference{
			model.ChannelSMS:   {Enabled: false},
			model.ChannelEmail: {Enabled: true, Categories: map[string]bool{"marketing": false}},
		},
	}

	assert.False(t, g.Allowed("u1", model.ChannelSMS, "alerts", pref, at(12, 0)))
	assert.False(t, g.Allowed("u1", model.ChannelEmail, "marketing", pref, at(12, 0)))
	assert.True(t, g.Allowed("u1", model.ChannelEmail, "alerts", pref, at(12, 0)))
	// a channel with no explicit entry stays allowed
	assert.True(t, g.Allowed("u1", model.ChannelPush, "alerts", pref, at(12, 0)))
}

func TestOvernightQuietHours(t *testing.T) {
	g := prefs.NewGate(true)
	pref := &model.NotificationPreference{
		UserID: "u1",
		DoNotDisturb: &model.DoNotDisturb{
			Enabled: true,
			Start:   "22:00",
			End:     "06:00",
		},
	}

	assert.False(t, g.Allowed("u1", model.ChannelPush, "", pref, at(23, 30)), "23:30 is inside the window")
	assert.False(t, g.Allowed("u1", model.ChannelPush, "", pref, at(5, 59)), "05:59 is inside the window")
	assert.True(t, g.Allowed("u1", model.ChannelPush, "", pref, at(6, 0)), "end is exclusive")
	assert.True(t, g.Allowed("u1", model.ChannelPush, "", pref, at(9, 0)), "09:00 is outside the window")
	assert.False(t, g.Allowed("u1", model.ChannelPush, "", pref, at(22, 0)), "start is inclusive")
}

func TestQuietHoursDayRestriction(t *testing.T) {
	g := prefs.NewGate(true)
	// DND only on Saturday (6) and Sunday (0); test time is a Tuesday
	pref := &model.NotificationPreference{
		UserID: "u1",
		DoNotDisturb: &model.DoNotDisturb{
			Enabled: true,
			Start:   "00:00",
			End:     "23:59",
			Days:    []int{0, 6},
		},
	}

	assert.True(t, g.Allowed("u1", model.ChannelPush, "", pref, at(12, 0)))

	pref.DoNotDisturb.Days = []int{2} // Tuesday
	assert.False(t, g.Allowed("u1", model.ChannelPush, "", pref, at(12, 0)))
}

func TestQuietHoursTimezone(t *testing.T) {
	g := prefs.NewGate(true)
	pref := &model.NotificationPreference{
		UserID:   "u1",
		Timezone: "Europe/Berlin",
		DoNotDisturb: &model.DoNotDisturb{
			Enabled: true,
			Start:   "22:00",
			End:     "06:00",
		},
	}

	// 21:30 UTC in March is 22:30 in Berlin: suppressed there, fine in UTC
	assert.False(t, g.Allowed("u1", model.ChannelPush, "", pref, at(21, 30)))

	pref.Timezone = ""
	assert.True(t, g.Allowed("u1", model.ChannelPush, "", pref, at(21, 30)))
}

func TestDisabledDND(t *testing.T) {
	g := prefs.NewGate(true)
	pref := &model.NotificationPreference{
		UserID:       "u1",
		DoNotDisturb: &model.DoNotDisturb{Enabled: false, Start: "00:00", End: "23:59"},
	}
	assert.True(t, g.Allowed("u1", model.ChannelPush, "", pref, at(12, 0)))
}
