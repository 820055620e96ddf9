package model

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"Scheduled", StatusScheduled, true},
		{" completed ", StatusCompleted, true},
		{"CANCELED", StatusCancelled, true},
		{"No-Show", StatusNoShow, true},
		{"no show", StatusNoShow, true},
		{"pending", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseStatus(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStatusClasses(t *testing.T) {
	if StatusScheduled.Finalized() || StatusScheduled.Sticky() {
		t.Fatal("scheduled must be neither finalized nor sticky")
	}
	if !StatusCancelled.Finalized() || StatusCancelled.Sticky() {
		t.Fatal("cancelled is finalized but not sticky")
	}
	if !StatusCompleted.Sticky() || !StatusNoShow.Sticky() {
		t.Fatal("completed and no show are sticky")
	}
}

func TestPlaceholders(t *testing.T) {
	if !IsPlaceholderDog("  unknown   DOG ") {
		t.Fatal("expected placeholder dog match ignoring case and spacing")
	}
	if IsPlaceholderOwner("Unknown") {
		t.Fatal("partial sentinel must not match")
	}
}

func TestSameContent(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a := Appointment{DogID: Ref("d1"), ScheduledAt: at, Status: StatusScheduled}
	b := a
	b.DogID = Ref("d1")
	b.ScheduledAt = at.In(time.FixedZone("X", 3600))
	if !a.SameContent(b) {
		t.Fatal("expected equal content across pointer copies and zones")
	}
	b.GroomerID = Ref("g1")
	if a.SameContent(b) {
		t.Fatal("expected groomer difference to be detected")
	}
}

func TestTenantLocation(t *testing.T) {
	if (Tenant{Timezone: "Not/AZone"}).Location() != time.UTC {
		t.Fatal("expected UTC fallback")
	}
}
