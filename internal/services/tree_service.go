package services

import (
	"context"

	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
	"golang.org/x/sync/singleflight"
)

// TreeService opens tree controllers for HTTP requests and realtime streams.
type TreeService struct {
	persist  Persistence
	families *FamilyService
	queue    TaskQueue
	geometry genealogy.Geometry

	loads singleflight.Group
}

func NewTreeService(persist Persistence, families *FamilyService, queue TaskQueue, geometry genealogy.Geometry) *TreeService {
	return &TreeService{
		persist:  persist,
		families: families,
		queue:    queue,
		geometry: geometry,
	}
}

// Open loads the family's tree as seen by userID. Only the owner may edit.
// Concurrent loads of the same family share one query.
func (s *TreeService) Open(ctx context.Context, familyID string, userID uint) (*TreeController, *models.Family, error) {
	return s.open(ctx, familyID, userID, false, nil)
}

// OpenAttached is Open for long-lived viewers. The controller subscribes to
// the family's changes before it loads and must be closed by the caller.
func (s *TreeService) OpenAttached(ctx context.Context, familyID string, userID uint, notify func(MemberChange)) (*TreeController, *models.Family, error) {
	return s.open(ctx, familyID, userID, true, notify)
}

func (s *TreeService) open(ctx context.Context, familyID string, userID uint, attach bool, notify func(MemberChange)) (*TreeController, *models.Family, error) {
	family, err := s.families.Get(ctx, familyID)
	if err != nil {
		return nil, nil, err
	}

	c := NewTreeController(s.persist, TreeOptions{
		FamilyID: family.ID,
		UserID:   userID,
		CanEdit:  family.OwnerID == userID,
		Geometry: s.geometry,
		Queue:    s.queue,
		Loader:   s.loadMembers,
	})
	if attach {
		c.Attach(notify)
	}
	if err := c.Load(ctx); err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, family, nil
}

// loadMembers shares one query between concurrent loads of a family. The
// query outlives a caller that gives up; each caller waits on its own ctx.
func (s *TreeService) loadMembers(ctx context.Context, familyID string) ([]models.Member, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(familyID, func() (interface{}, error) {
		return s.persist.ListMembers(shared, familyID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	list := res.Val.([]models.Member)
	members := make([]models.Member, len(list))
	for i, m := range list {
		members[i] = m.Clone()
	}
	return members, nil
}
