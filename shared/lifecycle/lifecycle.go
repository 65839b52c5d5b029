package lifecycle

import "strings"

const (
	StatusDraft    = "draft"
	StatusReview   = "review"
	StatusApproved = "approved"
	StatusDeployed = "deployed"
)

const (
	EventSubmitted = "version_submitted"
	EventApproved  = "version_approved"
	EventDeployed  = "version_deployed"
	EventCloned    = "version_cloned"
)

// Transitions run strictly forward; clone is handled separately because it
// creates a new draft instead of moving the source version.
var versionTransitions = map[string]map[string]string{
	StatusDraft: {
		StatusReview: EventSubmitted,
	},
	StatusReview: {
		StatusApproved: EventApproved,
	},
	StatusApproved: {
		StatusDeployed: EventDeployed,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	next := versionTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func EventTypeForTransition(fromStatus string, toStatus string) string {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	next := versionTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

// Editable reports whether a version's definition (items, cycle maps,
// name, description) may still change. Anything past draft is read-only.
func Editable(status string) bool {
	return NormalizeStatus(status) == StatusDraft
}

func AllStatuses() []string {
	return []string{
		StatusDraft,
		StatusReview,
		StatusApproved,
		StatusDeployed,
	}
}
