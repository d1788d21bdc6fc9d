package domain

import "time"

// LiteratureState is derived from DeletedAt and never stored on its own.
type LiteratureState string

const (
	StateActive  LiteratureState = "active"
	StateDeleted LiteratureState = "deleted"
)

// Literature is a document shared inside a group.
type Literature struct {
	ID           int64
	GroupID      int64
	Title        string
	StorageRef   string
	SizeBytes    int64
	UploaderID   int64
	CreatedAt    time.Time
	DeletedAt    *time.Time
	DeletedBy    *int64
	DeleteReason *string
	RestoredAt   *time.Time
	RestoredBy   *int64
}

// State returns Active when DeletedAt is unset and Deleted otherwise.
func (l Literature) State() LiteratureState {
	if l.DeletedAt == nil {
		return StateActive
	}
	return StateDeleted
}

// GroupUsage aggregates literature rows of one group by state.
type GroupUsage struct {
	GroupID      int64
	ActiveCount  int64
	ActiveBytes  int64
	DeletedCount int64
	DeletedBytes int64
}
