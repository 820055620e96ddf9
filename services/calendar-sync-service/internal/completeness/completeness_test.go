package completeness

import (
	"testing"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

func TestNeedsReview(t *testing.T) {
	owner := &model.Owner{ID: "o1", Name: "John Smith"}
	dog := &model.Dog{ID: "d1", Name: "Rex", OwnerID: owner.ID, Owner: owner}
	groomer := &model.Groomer{ID: "g1", Username: "alex"}

	cases := []struct {
		name     string
		dog      *model.Dog
		groomer  *model.Groomer
		services string
		status   model.Status
		want     bool
	}{
		{"missing dog", nil, groomer, "Bath", model.StatusScheduled, true},
		{"finalized short-circuits", dog, groomer, "", model.StatusCompleted, false},
		{"cancelled short-circuits", nil, nil, "", model.StatusCancelled, false},
		{"no show short-circuits", nil, nil, "", model.StatusNoShow, false},
		{"complete", dog, groomer, "Bath", model.StatusScheduled, false},
		{"dog without owner", &model.Dog{ID: "d2", Name: "Rex"}, groomer, "Bath", model.StatusScheduled, true},
		{"placeholder dog", &model.Dog{ID: "d3", Name: " unknown dog ", Owner: owner}, groomer, "Bath", model.StatusScheduled, true},
		{"placeholder owner", &model.Dog{ID: "d4", Name: "Rex", Owner: &model.Owner{Name: "UNKNOWN OWNER"}}, groomer, "Bath", model.StatusScheduled, true},
		{"missing groomer", dog, nil, "Bath", model.StatusScheduled, true},
		{"blank groomer name", dog, &model.Groomer{ID: "g2", Username: "  "}, "Bath", model.StatusScheduled, true},
		{"blank services", dog, groomer, " \t ", model.StatusScheduled, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsReview(tc.dog, tc.groomer, tc.services, tc.status); got != tc.want {
				t.Fatalf("NeedsReview = %v, want %v", got, tc.want)
			}
		})
	}
}
