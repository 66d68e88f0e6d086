package jobline

import "time"

// Entity carries the bookkeeping fields shared by all persisted records.
//
// Revision is an opaque token refreshed on every store write. Two writes
// can land within the same clock tick; the revision lets the reconciler
// tell them apart when UpdatedAt alone cannot.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  string    `json:"revision,omitempty"`
}
