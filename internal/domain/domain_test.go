package domain

import (
	"testing"
	"time"
)

func TestParseEnums(t *testing.T) {
	if c, ok := ParseCategory(" compliance "); !ok || c != CategoryCompliance {
		t.Fatalf("ParseCategory = %q, %v", c, ok)
	}
	if _, ok := ParseCategory("NEWS"); ok {
		t.Fatal("unknown category accepted")
	}
	if p, ok := ParsePriority("critical"); !ok || p != PriorityCritical {
		t.Fatalf("ParsePriority = %q, %v", p, ok)
	}
	if ch, ok := ParseChannel("in_app"); !ok || ch != ChannelInApp {
		t.Fatalf("ParseChannel = %q, %v", ch, ok)
	}
}

func TestPriorityEmailMapping(t *testing.T) {
	tests := map[Priority]EmailPriority{
		PriorityLow:      EmailPriorityNormal,
		PriorityNormal:   EmailPriorityNormal,
		PriorityHigh:     EmailPriorityHigh,
		PriorityCritical: EmailPriorityHigh,
	}
	for p, want := range tests {
		if got := p.EmailPriority(); got != want {
			t.Fatalf("%s.EmailPriority() = %s, want %s", p, got, want)
		}
	}
	if PriorityCritical.Rank() <= PriorityHigh.Rank() || Priority("X").Valid() {
		t.Fatal("rank ordering broken")
	}
}

func TestPreferenceChanges(t *testing.T) {
	off := false
	p := DefaultPreference("u1", CategorySystem)
	if !p.Allows(ChannelEmail) || !p.Allows(ChannelInApp) || p.Allows(ChannelSMS) {
		t.Fatalf("defaults = %+v", p)
	}
	c := PreferenceChanges{Email: &off}
	if c.Empty() {
		t.Fatal("Empty with Email set")
	}
	c.Apply(&p)
	if p.EmailEnabled || !p.InAppEnabled {
		t.Fatalf("after apply = %+v", p)
	}
	if !(PreferenceChanges{}).Empty() {
		t.Fatal("zero changes should be empty")
	}
	if !p.Allows(Channel("PIGEON")) {
		t.Fatal("unknown channels are allowed")
	}
}

func TestUserDeliverable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		u    User
		want bool
	}{
		{"active", User{Active: true}, true},
		{"inactive", User{}, false},
		{"deleted", User{Active: true, DeletedAt: &now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.Deliverable(); got != tt.want {
				t.Fatalf("Deliverable = %v", got)
			}
		})
	}
}

func TestChannelHelpers(t *testing.T) {
	set := DefaultChannels()
	if !HasChannel(set, ChannelEmail) || HasChannel(set, ChannelSMS) {
		t.Fatalf("DefaultChannels = %v", set)
	}
	if got := ChannelStrings(set); len(got) != 2 || got[0] != "IN_APP" || got[1] != "EMAIL" {
		t.Fatalf("ChannelStrings = %v", got)
	}
}
