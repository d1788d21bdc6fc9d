// Package memory provides mutex guarded in-process repositories. They back the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

var (
	_ repository.UserRepository       = (*Users)(nil)
	_ repository.GroupRepository      = (*Groups)(nil)
	_ repository.MembershipRepository = (*Groups)(nil)
	_ repository.LiteratureRepository = (*Literature)(nil)
	_ repository.TokenRepository      = (*Tokens)(nil)
	_ repository.KeyRepository        = (*Keys)(nil)
)

// Clock returns the current time. Tests may replace it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Users stores users keyed by id with unique username and phone indexes.
type Users struct {
	mu      sync.RWMutex
	byID    map[int64]domain.User
	byName  map[string]int64
	byPhone map[string]int64
	Clock   Clock
}

func NewUsers() *Users {
	return &Users{
		byID:    make(map[int64]domain.User),
		byName:  make(map[string]int64),
		byPhone: make(map[string]int64),
	}
}

func (s *Users) Create(ctx context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; ok {
		return domain.User{}, fmt.Errorf("create user: %w", repository.ErrConflict)
	}
	// Usernames and phones share one login namespace.
	for _, identifier := range []string{user.Username, user.Phone} {
		if s.identifierTaken(identifier) {
			return domain.User{}, fmt.Errorf("create user: %w", repository.ErrConflict)
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.Clock.now()
	}
	s.byID[user.ID] = user
	s.byName[user.Username] = user.ID
	s.byPhone[user.Phone] = user.ID
	return user, nil
}

func (s *Users) identifierTaken(identifier string) bool {
	_, byName := s.byName[identifier]
	_, byPhone := s.byPhone[identifier]
	return byName || byPhone
}

func (s *Users) GetByID(_ context.Context, userID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by id: %w", repository.ErrNotFound)
	}
	return u, nil
}

func (s *Users) GetByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by username: %w", repository.ErrNotFound)
	}
	return s.byID[id], nil
}

func (s *Users) GetByPhone(_ context.Context, phone string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by phone: %w", repository.ErrNotFound)
	}
	return s.byID[id], nil
}

func (s *Users) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("update password: %w", repository.ErrNotFound)
	}
	u.PasswordHash = hash
	s.byID[userID] = u
	return nil
}

type membershipKey struct {
	userID  int64
	groupID int64
}

// Groups stores groups and memberships.
type Groups struct {
	mu          sync.RWMutex
	groups      map[int64]domain.Group
	byCode      map[string]int64
	memberships map[membershipKey]domain.Membership
	Clock       Clock
}

func NewGroups() *Groups {
	return &Groups{
		groups:      make(map[int64]domain.Group),
		byCode:      make(map[string]int64),
		memberships: make(map[membershipKey]domain.Membership),
	}
}

func (s *Groups) CreateGroup(ctx context.Context, group domain.Group, owner domain.Membership) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; ok {
		return domain.Group{}, fmt.Errorf("create group: %w", repository.ErrConflict)
	}
	if _, ok := s.byCode[group.InviteCode]; ok {
		return domain.Group{}, fmt.Errorf("create group: %w", repository.ErrConflict)
	}
	if err := ctx.Err(); err != nil {
		return domain.Group{}, err
	}
	now := s.Clock.now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	s.groups[group.ID] = group
	s.byCode[group.InviteCode] = group.ID

	owner.GroupID = group.ID
	owner.CreatedAt = now
	s.memberships[membershipKey{owner.UserID, group.ID}] = owner
	return group, nil
}

func (s *Groups) GetGroup(_ context.Context, groupID int64) (domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return domain.Group{}, fmt.Errorf("get group: %w", repository.ErrNotFound)
	}
	return g, nil
}

func (s *Groups) GetGroupByInviteCode(_ context.Context, code string) (domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Group{}, fmt.Errorf("get group by invite code: %w", repository.ErrNotFound)
	}
	return s.groups[id], nil
}

func (s *Groups) CountGroups(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.groups)), nil
}

func (s *Groups) ListGroupsForUser(_ context.Context, userID int64) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]domain.Group, 0)
	for key := range s.memberships {
		if key.userID == userID {
			groups = append(groups, s.groups[key.groupID])
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID > groups[j].ID
		}
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}

// GroupIDs returns all group ids in ascending order.
func (s *Groups) GroupIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Groups) hasGroup(groupID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[groupID]
	return ok
}

func (s *Groups) GetMembership(_ context.Context, userID, groupID int64) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{userID, groupID}]
	if !ok {
		return domain.Membership{}, fmt.Errorf("get membership: %w", repository.ErrNotFound)
	}
	return m, nil
}

func (s *Groups) AddMembership(_ context.Context, membership domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[membership.GroupID]; !ok {
		return fmt.Errorf("add membership: %w", repository.ErrNotFound)
	}
	key := membershipKey{membership.UserID, membership.GroupID}
	if _, ok := s.memberships[key]; ok {
		return fmt.Errorf("add membership: %w", repository.ErrConflict)
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = s.Clock.now()
	}
	s.memberships[key] = membership
	return nil
}

func (s *Groups) RemoveMembership(_ context.Context, userID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey{userID, groupID}
	if _, ok := s.memberships[key]; !ok {
		return fmt.Errorf("remove membership: %w", repository.ErrNotFound)
	}
	delete(s.memberships, key)
	return nil
}

func (s *Groups) ListMembers(_ context.Context, groupID int64) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]domain.Membership, 0)
	for key, m := range s.memberships {
		if key.groupID == groupID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// Literature stores literature rows. A single mutex makes each Transition a
// serialized read-check-write.
type Literature struct {
	mu     sync.Mutex
	rows   map[int64]domain.Literature
	groups *Groups
	Clock  Clock
}

// NewLiterature links the store to groups so usage covers empty groups and
// inserts reject unknown groups.
func NewLiterature(groups *Groups) *Literature {
	return &Literature{rows: make(map[int64]domain.Literature), groups: groups}
}

func (s *Literature) Create(ctx context.Context, lit domain.Literature) (domain.Literature, error) {
	if s.groups != nil && !s.groups.hasGroup(lit.GroupID) {
		return domain.Literature{}, fmt.Errorf("create literature: %w", repository.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[lit.ID]; ok {
		return domain.Literature{}, fmt.Errorf("create literature: %w", repository.ErrConflict)
	}
	if err := ctx.Err(); err != nil {
		return domain.Literature{}, err
	}
	if lit.CreatedAt.IsZero() {
		lit.CreatedAt = s.Clock.now()
	}
	lit.DeletedAt, lit.DeletedBy, lit.DeleteReason, lit.RestoredAt, lit.RestoredBy = nil, nil, nil, nil, nil
	s.rows[lit.ID] = lit
	return cloneLiterature(lit), nil
}

func (s *Literature) Get(_ context.Context, litID int64) (domain.Literature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[litID]
	if !ok {
		return domain.Literature{}, fmt.Errorf("get literature: %w", repository.ErrNotFound)
	}
	return cloneLiterature(l), nil
}

func (s *Literature) Transition(ctx context.Context, litID int64, fn repository.TransitionFunc) (domain.Literature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rows[litID]
	if !ok {
		return domain.Literature{}, fmt.Errorf("lock literature: %w", repository.ErrNotFound)
	}
	next, err := fn(cloneLiterature(current), s.memberships())
	if err != nil {
		return domain.Literature{}, err
	}
	// A cancelled request must leave the row untouched.
	if err := ctx.Err(); err != nil {
		return domain.Literature{}, err
	}

	current.DeletedAt = next.DeletedAt
	current.DeletedBy = next.DeletedBy
	current.DeleteReason = next.DeleteReason
	current.RestoredAt = next.RestoredAt
	current.RestoredBy = next.RestoredBy
	s.rows[litID] = cloneLiterature(current)
	return cloneLiterature(current), nil
}

func (s *Literature) memberships() repository.MembershipReader {
	if s.groups == nil {
		return noMemberships{}
	}
	return s.groups
}

type noMemberships struct{}

func (noMemberships) GetMembership(context.Context, int64, int64) (domain.Membership, error) {
	return domain.Membership{}, fmt.Errorf("get membership: %w", repository.ErrNotFound)
}

func (s *Literature) ListByState(_ context.Context, groupID int64, state domain.LiteratureState) ([]domain.Literature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.Literature, 0)
	for _, l := range s.rows {
		if l.GroupID == groupID && l.State() == state {
			items = append(items, cloneLiterature(l))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Literature) GroupUsage(_ context.Context, groupID int64) (domain.GroupUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usageLocked(groupID), nil
}

func (s *Literature) UsageByGroup(context.Context) ([]domain.GroupUsage, error) {
	var ids []int64
	if s.groups != nil {
		ids = s.groups.GroupIDs()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.GroupUsage, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.usageLocked(id))
	}
	return result, nil
}

func (s *Literature) usageLocked(groupID int64) domain.GroupUsage {
	usage := domain.GroupUsage{GroupID: groupID}
	for _, l := range s.rows {
		if l.GroupID != groupID {
			continue
		}
		if l.State() == domain.StateActive {
			usage.ActiveCount++
			usage.ActiveBytes += l.SizeBytes
		} else {
			usage.DeletedCount++
			usage.DeletedBytes += l.SizeBytes
		}
	}
	return usage
}

func cloneLiterature(l domain.Literature) domain.Literature {
	out := l
	if l.DeletedAt != nil {
		v := *l.DeletedAt
		out.DeletedAt = &v
	}
	if l.DeletedBy != nil {
		v := *l.DeletedBy
		out.DeletedBy = &v
	}
	if l.DeleteReason != nil {
		v := *l.DeleteReason
		out.DeleteReason = &v
	}
	if l.RestoredAt != nil {
		v := *l.RestoredAt
		out.RestoredAt = &v
	}
	if l.RestoredBy != nil {
		v := *l.RestoredBy
		out.RestoredBy = &v
	}
	return out
}

// Tokens stores refresh tokens keyed by hash.
type Tokens struct {
	mu     sync.Mutex
	byHash map[string]domain.RefreshToken
}

func NewTokens() *Tokens {
	return &Tokens{byHash: make(map[string]domain.RefreshToken)}
}

func (s *Tokens) Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.RefreshToken{}, err
	}
	return s.insertLocked(token)
}

func (s *Tokens) insertLocked(token domain.RefreshToken) (domain.RefreshToken, error) {
	if _, ok := s.byHash[token.TokenHash]; ok {
		return domain.RefreshToken{}, fmt.Errorf("insert refresh token: %w", repository.ErrConflict)
	}
	for _, existing := range s.byHash {
		if existing.FamilyID == token.FamilyID && !existing.Consumed {
			return domain.RefreshToken{}, fmt.Errorf("insert refresh token: %w", repository.ErrConflict)
		}
	}
	token.Consumed = false
	s.byHash[token.TokenHash] = token
	return token, nil
}

func (s *Tokens) GetByHash(_ context.Context, tokenHash string) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok {
		return domain.RefreshToken{}, fmt.Errorf("get refresh token: %w", repository.ErrNotFound)
	}
	return t, nil
}

func (s *Tokens) Rotate(ctx context.Context, tokenHash string, next domain.RefreshToken, check repository.RotateCheck) (domain.RefreshToken, domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byHash[tokenHash]
	if !ok {
		return domain.RefreshToken{}, domain.RefreshToken{}, fmt.Errorf("lock refresh token: %w", repository.ErrNotFound)
	}
	if err := check(current); err != nil {
		return current, domain.RefreshToken{}, err
	}
	if err := ctx.Err(); err != nil {
		return current, domain.RefreshToken{}, err
	}

	consumed := current
	consumed.Consumed = true
	s.byHash[tokenHash] = consumed

	next.FamilyID = current.FamilyID
	next.UserID = current.UserID
	successor, err := s.insertLocked(next)
	if err != nil {
		s.byHash[tokenHash] = current
		return current, domain.RefreshToken{}, err
	}
	return current, successor, nil
}

func (s *Tokens) RevokeFamily(_ context.Context, userID int64, familyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked int64
	for hash, t := range s.byHash {
		if t.FamilyID != familyID || t.UserID != userID || t.Consumed {
			continue
		}
		t.Consumed = true
		s.byHash[hash] = t
		revoked++
	}
	return revoked, nil
}

func (s *Tokens) RevokeUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked int64
	for hash, t := range s.byHash {
		if t.UserID != userID || t.Consumed {
			continue
		}
		t.Consumed = true
		s.byHash[hash] = t
		revoked++
	}
	return revoked, nil
}

// Family returns every token of a family, oldest first.
func (s *Tokens) Family(familyID string) []domain.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RefreshToken, 0)
	for _, t := range s.byHash {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// Keys stores signing keys.
type Keys struct {
	mu   sync.Mutex
	keys []domain.SigningKey
}

func NewKeys() *Keys {
	return &Keys{}
}

func (s *Keys) GetActiveKey(context.Context) (domain.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.keys) - 1; i >= 0; i-- {
		if s.keys[i].IsActive {
			return s.keys[i], nil
		}
	}
	return domain.SigningKey{}, fmt.Errorf("get active key: %w", repository.ErrNotFound)
}

func (s *Keys) CreateKey(_ context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.IsActive {
			return domain.SigningKey{}, fmt.Errorf("create key: %w", repository.ErrConflict)
		}
	}
	key.IsActive = true
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	s.keys = append(s.keys, key)
	return key, nil
}
