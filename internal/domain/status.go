package domain

import (
	"fmt"
	"strings"
)

// Status enumerates the content-production milestones.
type Status string

const (
	StatusPlanned     Status = "planned"
	StatusInBatch     Status = "in_batch"
	StatusDraft       Status = "draft"
	StatusImageNeeded Status = "image_needed"
	StatusReady       Status = "ready"
	StatusPublished   Status = "published"
	StatusError       Status = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPlanned, StatusInBatch, StatusDraft, StatusImageNeeded,
	StatusReady, StatusPublished, StatusError,
}

var transitions = map[Status][]Status{
	StatusPlanned:     {StatusInBatch},
	StatusInBatch:     {StatusImageNeeded, StatusDraft, StatusPlanned},
	StatusDraft:       {StatusImageNeeded},
	StatusImageNeeded: {StatusReady},
	StatusReady:       {StatusPublished, StatusError},
	StatusError:       {StatusReady},
}

var legacyLabels = map[string]Status{
	"planned":         StatusPlanned,
	"in batch":        StatusInBatch,
	"in_batch":        StatusInBatch,
	"draft":           StatusDraft,
	"image needed":    StatusImageNeeded,
	"image_needed":    StatusImageNeeded,
	"ready to upload": StatusReady,
	"ready":           StatusReady,
	"published":       StatusPublished,
	"error":           StatusError,
}

// ParseStatus accepts canonical values and the legacy spreadsheet labels.
func ParseStatus(raw string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := legacyLabels[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// CanTransition reports whether from -> to is in the transition table.
// Returning to planned is only legal while no body markup exists.
func CanTransition(from, to Status, hasBody bool) bool {
	if to == StatusPlanned && hasBody {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CheckTransition wraps CanTransition into an ErrInvalidTransition error.
func CheckTransition(from, to Status, hasBody bool) error {
	if CanTransition(from, to, hasBody) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
