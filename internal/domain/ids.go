package domain

// UserID is the authenticated actor identity delivered by the edge.
// We model it as an opaque identifier: its format is controlled by the auth layer.
type UserID string

// ActivityID is an internal identifier for an activity record.
type ActivityID string

// RegistrationID is an internal identifier for a registration record.
type RegistrationID string
