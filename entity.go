package batch

import "time"

// Entity carries the audit and concurrency fields shared by every
// persisted record. Version backs optimistic conditional updates: a
// writer that read version N only wins if the row is still at N.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// NewEntity returns an Entity stamped with the current UTC time at
// version 1.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now, Version: 1}
}

// Touch advances UpdatedAt and the version counter. Stores call this
// before persisting a mutation.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
	e.Version++
}
