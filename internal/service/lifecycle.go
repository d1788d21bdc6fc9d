package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

const (
	maxTitleLength  = 500
	maxReasonLength = 500
)

// FileInspector reports the size of stored bytes behind a storage reference.
type FileInspector interface {
	Stat(ctx context.Context, ref string) (int64, error)
}

// NewLiterature describes an uploaded file to register.
type NewLiterature struct {
	GroupID    int64
	Title      string
	StorageRef string
	SizeBytes  int64
}

// LiteratureLifecycle owns the Active/Deleted state machine of literature records.
type LiteratureLifecycle struct {
	literature repository.LiteratureRepository
	gate       *AuthorizationGate
	files      FileInspector
	snowflake  *snowflake.Node
	metrics    *telemetry.Metrics
	instrument
}

// NewLiteratureLifecycle wires dependencies. files may be nil, in which case the
// declared size of new records is trusted.
func NewLiteratureLifecycle(literature repository.LiteratureRepository, gate *AuthorizationGate, files FileInspector, node *snowflake.Node, events EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *LiteratureLifecycle {
	return &LiteratureLifecycle{
		literature: literature,
		gate:       gate,
		files:      files,
		snowflake:  node,
		metrics:    metrics,
		instrument: newInstrument(logger, events),
	}
}

// Register records an uploaded file in an Active state. The uploader must be a
// member of the group.
func (m *LiteratureLifecycle) Register(ctx context.Context, actorID int64, in NewLiterature) (domain.Literature, error) {
	ctx, span := m.startSpan(ctx, "LiteratureLifecycle.Register")
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.StorageRef = strings.TrimSpace(in.StorageRef)
	if in.Title == "" || in.StorageRef == "" || in.SizeBytes < 0 || utf8.RuneCountInString(in.Title) > maxTitleLength {
		return domain.Literature{}, fmt.Errorf("title and storage reference are required: %w", domain.ErrInvalidInput)
	}

	if _, err := m.gate.Authorize(ctx, actorID, in.GroupID, domain.RoleMember); err != nil {
		return domain.Literature{}, fail(span, err)
	}

	if m.files != nil {
		size, err := m.files.Stat(ctx, in.StorageRef)
		if err != nil {
			return domain.Literature{}, fmt.Errorf("storage reference %q: %w", in.StorageRef, domain.ErrInvalidInput)
		}
		in.SizeBytes = size
	}

	created, err := m.literature.Create(ctx, domain.Literature{
		ID:         m.snowflake.Generate().Int64(),
		GroupID:    in.GroupID,
		Title:      in.Title,
		StorageRef: in.StorageRef,
		SizeBytes:  in.SizeBytes,
		UploaderID: actorID,
	})
	if err != nil {
		if isNotFound(err) {
			return domain.Literature{}, domain.ErrGroupNotFound
		}
		return domain.Literature{}, fail(span, storageErr("create literature", err))
	}

	m.audit("literature.created", "literature_id", created.ID, "group_id", created.GroupID, "user_id", actorID)
	m.publish(ctx, domain.Event{Type: domain.EventLiteratureCreated, ActorID: actorID, GroupID: created.GroupID, SubjectID: created.ID})
	return created, nil
}

// Get returns one record the actor may view.
func (m *LiteratureLifecycle) Get(ctx context.Context, actorID, litID int64) (domain.Literature, error) {
	ctx, span := m.startSpan(ctx, "LiteratureLifecycle.Get")
	defer span.End()

	lit, err := m.literature.Get(ctx, litID)
	if err != nil {
		if isNotFound(err) {
			return domain.Literature{}, domain.ErrLiteratureNotFound
		}
		return domain.Literature{}, fail(span, storageErr("load literature", err))
	}
	if err := m.gate.AuthorizeResourceAction(ctx, actorID, lit, ActionView); err != nil {
		return domain.Literature{}, err
	}
	return lit, nil
}

// SoftDelete moves an Active record to Deleted.
func (m *LiteratureLifecycle) SoftDelete(ctx context.Context, litID, actorID int64, reason string) (domain.Literature, error) {
	ctx, span := m.startSpan(ctx, "LiteratureLifecycle.SoftDelete")
	defer span.End()

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return domain.Literature{}, fmt.Errorf("reason too long: %w", domain.ErrInvalidInput)
	}

	updated, err := m.transition(ctx, litID, actorID, ActionDelete, func(current domain.Literature) (domain.Literature, error) {
		if current.State() != domain.StateActive {
			return domain.Literature{}, domain.ErrInvalidStateTransition
		}
		now := m.clock()
		current.DeletedAt = &now
		current.DeletedBy = &actorID
		current.DeleteReason = &reason
		return current, nil
	})
	if err != nil {
		return domain.Literature{}, fail(span, err)
	}

	m.audit("literature.deleted", "literature_id", litID, "group_id", updated.GroupID, "user_id", actorID)
	m.publish(ctx, domain.Event{
		Type:       domain.EventLiteratureDeleted,
		ActorID:    actorID,
		GroupID:    updated.GroupID,
		SubjectID:  litID,
		Attributes: map[string]string{"reason": reason},
	})
	return updated, nil
}

// Restore moves a Deleted record back to Active. The previous deletion fields
// stay on the record as audit trail.
func (m *LiteratureLifecycle) Restore(ctx context.Context, litID, actorID int64) (domain.Literature, error) {
	ctx, span := m.startSpan(ctx, "LiteratureLifecycle.Restore")
	defer span.End()

	updated, err := m.transition(ctx, litID, actorID, ActionRestore, func(current domain.Literature) (domain.Literature, error) {
		if current.State() != domain.StateDeleted {
			return domain.Literature{}, domain.ErrInvalidStateTransition
		}
		now := m.clock()
		current.DeletedAt = nil
		current.RestoredAt = &now
		current.RestoredBy = &actorID
		return current, nil
	})
	if err != nil {
		return domain.Literature{}, fail(span, err)
	}

	m.audit("literature.restored", "literature_id", litID, "group_id", updated.GroupID, "user_id", actorID)
	m.publish(ctx, domain.Event{Type: domain.EventLiteratureRestored, ActorID: actorID, GroupID: updated.GroupID, SubjectID: litID})
	return updated, nil
}

// transition authorizes against the locked row before checking its state, so
// a caller without access learns nothing about the record's state. The
// membership is read through the repository's transaction.
func (m *LiteratureLifecycle) transition(ctx context.Context, litID, actorID int64, action Action, apply func(domain.Literature) (domain.Literature, error)) (domain.Literature, error) {
	updated, err := m.literature.Transition(ctx, litID, func(current domain.Literature, members repository.MembershipReader) (domain.Literature, error) {
		if err := m.gate.Using(members).AuthorizeResourceAction(ctx, actorID, current, action); err != nil {
			return domain.Literature{}, err
		}
		return apply(current)
	})
	if err != nil {
		m.metrics.Transition(string(action), outcome(err))
		if isNotFound(err) {
			return domain.Literature{}, domain.ErrLiteratureNotFound
		}
		if isDomainError(err) {
			return domain.Literature{}, err
		}
		return domain.Literature{}, storageErr(string(action)+" literature", err)
	}
	m.metrics.Transition(string(action), "success")
	return updated, nil
}

// ListActive returns the group's Active records, newest first.
func (m *LiteratureLifecycle) ListActive(ctx context.Context, actorID, groupID int64) ([]domain.Literature, error) {
	return m.list(ctx, actorID, groupID, domain.StateActive)
}

// ListDeleted returns the group's Deleted records, newest first.
func (m *LiteratureLifecycle) ListDeleted(ctx context.Context, actorID, groupID int64) ([]domain.Literature, error) {
	return m.list(ctx, actorID, groupID, domain.StateDeleted)
}

func (m *LiteratureLifecycle) list(ctx context.Context, actorID, groupID int64, state domain.LiteratureState) ([]domain.Literature, error) {
	ctx, span := m.startSpan(ctx, "LiteratureLifecycle.List")
	defer span.End()

	if _, err := m.gate.Authorize(ctx, actorID, groupID, domain.RoleMember); err != nil {
		return nil, err
	}
	items, err := m.literature.ListByState(ctx, groupID, state)
	if err != nil {
		return nil, fail(span, storageErr("list literature", err))
	}
	return items, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrInsufficientRole):
		return "denied"
	case isNotFound(err):
		return "not_found"
	}
	return "error"
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidStateTransition,
		domain.ErrNotMember,
		domain.ErrInsufficientRole,
		domain.ErrStorageIO,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
