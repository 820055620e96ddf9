// Package completeness decides whether an appointment is missing information
// staff must fill in by hand.
package completeness

import (
	"strings"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// NeedsReview reports whether the appointment belongs in the review queue.
// dog must carry its Owner for the owner checks to pass.
func NeedsReview(dog *model.Dog, groomer *model.Groomer, services string, status model.Status) bool {
	if status.Finalized() {
		return false
	}
	if dog == nil || dog.Owner == nil {
		return true
	}
	if model.IsPlaceholderDog(dog.Name) || model.IsPlaceholderOwner(dog.Owner.Name) {
		return true
	}
	if groomer == nil || groomer.DisplayName() == "" {
		return true
	}
	return strings.TrimSpace(services) == ""
}
