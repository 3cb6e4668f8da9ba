package domain

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusFull      Status = "full"
	StatusClosed    Status = "closed"
	StatusArchived  Status = "archived"
)

// StatusAction is an externally requested lifecycle change.
// StatusFull is never a requestable target: it is derived from the
// remaining-slot count while published (see DeriveCapacityStatus).
type StatusAction string

const (
	ActionPublish   StatusAction = "publish"
	ActionUnpublish StatusAction = "unpublish"
	ActionClose     StatusAction = "close"
	ActionArchive   StatusAction = "archive"
)

// NextStatus computes the legal transition for (current, action).
// ok=false means no transition exists; callers must treat that as a
// conflict rather than silently ignoring the request.
func NextStatus(current Status, action StatusAction) (Status, bool) {
	switch action {
	case ActionPublish:
		if current == StatusDraft {
			return StatusPublished, true
		}
	case ActionUnpublish:
		if current == StatusPublished {
			return StatusDraft, true
		}
	case ActionClose:
		if current == StatusPublished || current == StatusFull {
			return StatusClosed, true
		}
	case ActionArchive:
		if current == StatusDraft || current == StatusClosed {
			return StatusArchived, true
		}
	}
	return "", false
}

// ParseStatusAction validates an action string from the edge.
func ParseStatusAction(s string) (StatusAction, bool) {
	switch a := StatusAction(s); a {
	case ActionPublish, ActionUnpublish, ActionClose, ActionArchive:
		return a, true
	}
	return "", false
}

// DeriveCapacityStatus re-derives the published/full pair from the
// remaining-slot count. All other statuses pass through unchanged.
func DeriveCapacityStatus(current Status, remainingSlots int) Status {
	if current == StatusPublished && remainingSlots == 0 {
		return StatusFull
	}
	if current == StatusFull && remainingSlots > 0 {
		return StatusPublished
	}
	return current
}
