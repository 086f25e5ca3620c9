package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
	"finanzas/internal/offline"
)

const familyTTL = 10 * time.Minute

type FamilyDeps struct {
	Data         dataapi.FamilyStore
	Queue        Enqueuer
	Connectivity offline.Connectivity
	Invalidator  *Invalidator
	Cache        *cache.Store
	Now          func() time.Time
	Logger       *log.Logger
}

// FamilyService creates family groups and memberships, queueing them while
// offline like TransactionService does.
type FamilyService struct {
	data   dataapi.FamilyStore
	queue  Enqueuer
	conn   offline.Connectivity
	inval  *Invalidator
	cache  *cache.Store
	now    func() time.Time
	logger *log.Logger
}

func NewFamilyService(d FamilyDeps) *FamilyService {
	s := &FamilyService{
		data:   d.Data,
		queue:  d.Queue,
		conn:   d.Connectivity,
		inval:  d.Invalidator,
		cache:  d.Cache,
		now:    d.Now,
		logger: d.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	s.logger = s.logger.WithComponent(log.ComponentBackend)
	return s
}

// FamilyResult is returned by Create. Offline, both the family and the
// creator's admin membership are queued and ActionIDs lists them in order.
type FamilyResult struct {
	Family    core.Family       `json:"family"`
	Member    core.FamilyMember `json:"member"`
	Queued    bool              `json:"queued"`
	ActionIDs []string          `json:"action_ids,omitempty"`
}

// Create makes a new family with its creator as admin.
func (s *FamilyService) Create(ctx context.Context, name, userID string) (FamilyResult, error) {
	now := s.now()
	f := dataapi.PrepareFamily(core.Family{Name: name, CreatedBy: userID}, now)
	if err := f.Validate(); err != nil {
		return FamilyResult{}, err
	}
	m := dataapi.PrepareMember(core.FamilyMember{FamilyID: f.ID, UserID: userID, Role: core.RoleAdmin}, now)

	if s.conn == nil || s.conn.Online() {
		created, err := s.data.InsertFamily(ctx, f)
		if err == nil {
			member, err := s.data.InsertFamilyMember(ctx, m)
			if err != nil {
				// The family exists; queue the membership so the creator still joins.
				if !errors.Is(err, dataapi.ErrUnavailable) {
					return FamilyResult{}, fmt.Errorf("add family creator: %w", err)
				}
				s.changed(ctx)
				id, qerr := s.enqueue(ctx, offline.JoinFamily{Member: m})
				if qerr != nil {
					return FamilyResult{}, qerr
				}
				return FamilyResult{Family: created, Member: m, Queued: true, ActionIDs: []string{id}}, nil
			}
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Family created",
				log.FieldOperation, log.OpCreate, log.FieldFamilyID, created.ID, log.FieldUserID, userID)
			s.logger.Track(ctx, "family_action", "action", "created", log.FieldFamilyID, created.ID)
			return FamilyResult{Family: created, Member: member}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return FamilyResult{}, fmt.Errorf("create family: %w", err)
		}
	}

	famID, err := s.enqueue(ctx, offline.CreateFamily{Family: f})
	if err != nil {
		return FamilyResult{}, err
	}
	memID, err := s.enqueue(ctx, offline.JoinFamily{Member: m})
	if err != nil {
		return FamilyResult{}, err
	}
	return FamilyResult{Family: f, Member: m, Queued: true, ActionIDs: []string{famID, memID}}, nil
}

// Join adds userID to a family as a regular member.
func (s *FamilyService) Join(ctx context.Context, familyID, userID string) (core.FamilyMember, Result, error) {
	m := dataapi.PrepareMember(core.FamilyMember{FamilyID: familyID, UserID: userID, Role: core.RoleMember}, s.now())
	if err := m.Validate(); err != nil {
		return core.FamilyMember{}, Result{}, err
	}

	if s.conn == nil || s.conn.Online() {
		member, err := s.data.InsertFamilyMember(ctx, m)
		if err == nil {
			s.changed(ctx)
			s.logger.InfoContext(ctx, "Family joined",
				log.FieldOperation, log.OpCreate, log.FieldFamilyID, familyID, log.FieldUserID, userID)
			s.logger.Track(ctx, "family_action", "action", "joined", log.FieldFamilyID, familyID)
			return member, Result{}, nil
		}
		if !errors.Is(err, dataapi.ErrUnavailable) {
			return core.FamilyMember{}, Result{}, fmt.Errorf("join family: %w", err)
		}
	}
	id, err := s.enqueue(ctx, offline.JoinFamily{Member: m})
	if err != nil {
		return core.FamilyMember{}, Result{}, err
	}
	return m, Result{Queued: true, ActionID: id}, nil
}

// FamilyData is a family with its members in join order.
type FamilyData struct {
	Family  core.Family         `json:"family"`
	Members []core.FamilyMember `json:"members"`
}

// HasMember reports whether userID belongs to the family.
func (d FamilyData) HasMember(userID string) bool {
	for _, m := range d.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Get returns a family and its members, cached for ten minutes under
// family_<id>. Families the user does not belong to are reported as not found.
func (s *FamilyService) Get(ctx context.Context, familyID, userID string) (FamilyData, error) {
	if familyID == "" {
		return FamilyData{}, core.ErrEmptyFamilyID
	}
	fetch := func(ctx context.Context) (FamilyData, error) {
		f, err := s.data.GetFamily(ctx, familyID)
		if err != nil {
			return FamilyData{}, fmt.Errorf("get family: %w", err)
		}
		members, err := s.data.ListFamilyMembers(ctx, familyID)
		if err != nil {
			return FamilyData{}, fmt.Errorf("list family members: %w", err)
		}
		if members == nil {
			members = []core.FamilyMember{}
		}
		return FamilyData{Family: f, Members: members}, nil
	}

	var (
		data FamilyData
		err  error
	)
	if s.cache == nil {
		data, err = fetch(ctx)
	} else {
		data, err = cache.GetOrSet(ctx, s.cache, FamilyKeyPrefix+familyID, familyTTL, fetch)
	}
	if err != nil {
		return FamilyData{}, err
	}
	if !data.HasMember(userID) {
		return FamilyData{}, fmt.Errorf("family %s: %w", familyID, dataapi.ErrNotFound)
	}
	return data, nil
}

func (s *FamilyService) enqueue(ctx context.Context, p offline.Payload) (string, error) {
	if s.queue == nil {
		return "", dataapi.ErrUnavailable
	}
	id, err := s.queue.Enqueue(ctx, p)
	if id == "" {
		return "", fmt.Errorf("queue %s: %w", p.Kind(), err)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Offline action not persisted", log.FieldActionID, id, log.FieldError, err)
	}
	return id, nil
}

func (s *FamilyService) changed(ctx context.Context) {
	if s.inval != nil {
		s.inval.DataChanged(ctx)
	}
}
