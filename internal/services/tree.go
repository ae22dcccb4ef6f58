package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/store"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

// SkipWriteFailed marks a follow-up link whose database write failed after
// the new member was inserted.
const SkipWriteFailed genealogy.SkipReason = "write_failed"

// PhotoUpload is an image sent along with an add or edit.
type PhotoUpload struct {
	Filename string
	Reader   io.Reader
}

// AddMemberRequest is an add intent as received from a client.
type AddMemberRequest struct {
	Kind         string   `json:"kind"`
	AnchorID     *string  `json:"anchor_id"`
	Name         string   `json:"name"`
	Born         *int     `json:"born"`
	Died         *int     `json:"died"`
	Relation     *string  `json:"relation"`
	Note         *string  `json:"note"`
	PhotoURL     *string  `json:"photo_url"`
	ParentID     *string  `json:"parent_id"`
	Parent2ID    *string  `json:"parent2_id"`
	SpouseOf     *string  `json:"spouse_of"`
	AlsoChildOf  *string  `json:"also_child_of"`
	AlsoParentOf []string `json:"also_parent_of"`
	SelfAdd      bool     `json:"self_add"`
}

// EditMemberRequest replaces the editable fields of a member. Link fields
// and the family are not editable.
type EditMemberRequest struct {
	Name     string  `json:"name"`
	Born     *int    `json:"born"`
	Died     *int    `json:"died"`
	Relation *string `json:"relation"`
	Note     *string `json:"note"`
	PhotoURL *string `json:"photo_url"`
}

type AddResult struct {
	Member     models.Member           `json:"member"`
	FollowUps  []genealogy.FollowUp    `json:"follow_ups"`
	Skipped    []genealogy.SkippedLink `json:"skipped"`
	SelfLinked bool                    `json:"self_linked"`
	PhotoError string                  `json:"photo_error,omitempty"`
}

type EditResult struct {
	Member     models.Member `json:"member"`
	PhotoError string        `json:"photo_error,omitempty"`
}

type TreeOptions struct {
	FamilyID string
	UserID   uint
	CanEdit  bool
	Geometry genealogy.Geometry
	// Queue receives photo cleanup work after deletes. Optional.
	Queue TaskQueue
	// Loader overrides Persistence.ListMembers for Load.
	Loader func(ctx context.Context, familyID string) ([]models.Member, error)
}

// TreeController runs the tree of one family for one viewing user. It turns
// user intents into rule decisions and persistence writes, and applies a
// write to its member store only after the write succeeded.
type TreeController struct {
	opts    TreeOptions
	persist Persistence
	store   *store.MemberStore

	// serializes mutating operations
	mu sync.Mutex

	subMu       sync.Mutex
	unsubscribe func()

	// changes received before the first Load are held back and replayed
	// on top of the loaded members
	recvMu  sync.Mutex
	loaded  bool
	pending []MemberChange
	notify  func(MemberChange)
}

func NewTreeController(persist Persistence, opts TreeOptions) *TreeController {
	if opts.Loader == nil {
		opts.Loader = persist.ListMembers
	}
	return &TreeController{
		opts:    opts,
		persist: persist,
		store:   store.NewMemberStore(opts.FamilyID),
	}
}

func (c *TreeController) FamilyID() string { return c.opts.FamilyID }
func (c *TreeController) CanEdit() bool    { return c.opts.CanEdit }

// Store exposes the member store for read access.
func (c *TreeController) Store() *store.MemberStore { return c.store }

// Load fetches the family's members and the viewer's self-link.
func (c *TreeController) Load(ctx context.Context) error {
	members, err := c.opts.Loader(ctx, c.opts.FamilyID)
	if err != nil {
		return &PersistenceError{Op: "list members", Err: err}
	}
	self, err := c.persist.GetSelfLink(ctx, c.opts.UserID)
	if err != nil {
		return &PersistenceError{Op: "get self link", Err: err}
	}
	c.store.Load(members)
	c.store.SetSelfLink(self)

	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	c.loaded = true
	for _, ch := range c.pending {
		c.apply(ch)
	}
	c.pending = nil
	return nil
}

// Attach subscribes the store to the family's change notifications.
// notify, when set, runs after every applied change. Attaching before Load
// keeps changes committed while the members are read.
func (c *TreeController) Attach(notify func(MemberChange)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.unsubscribe != nil {
		return
	}

	c.recvMu.Lock()
	c.notify = notify
	c.recvMu.Unlock()

	c.unsubscribe = c.persist.Subscribe(c.opts.FamilyID, ChangeHandlers{
		OnInsert: func(m models.Member) {
			c.receive(MemberChange{Op: ChangeInsert, FamilyID: c.opts.FamilyID, Member: &m})
		},
		OnUpdate: func(m models.Member) {
			c.receive(MemberChange{Op: ChangeUpdate, FamilyID: c.opts.FamilyID, Member: &m})
		},
		OnDelete: func(ids []string) {
			c.receive(MemberChange{Op: ChangeDelete, FamilyID: c.opts.FamilyID, IDs: ids})
		},
	})
}

func (c *TreeController) receive(ch MemberChange) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if !c.loaded {
		c.pending = append(c.pending, ch)
		return
	}
	c.apply(ch)
}

// apply runs with recvMu held.
func (c *TreeController) apply(ch MemberChange) {
	var changed bool
	switch ch.Op {
	case ChangeInsert:
		changed = c.store.ApplyInsert(*ch.Member)
	case ChangeUpdate:
		changed = c.store.ApplyUpdate(*ch.Member)
	case ChangeDelete:
		changed = c.store.ApplyDelete(ch.IDs...) > 0
	}
	if changed && c.notify != nil {
		c.notify(ch)
	}
}

// Close stops change notifications.
func (c *TreeController) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Intent turns a client request into a rules engine intent.
func (c *TreeController) Intent(req AddMemberRequest) (genealogy.AddIntent, error) {
	kind, err := genealogy.ParseKind(req.Kind)
	if err != nil {
		return genealogy.AddIntent{}, err
	}
	intent := genealogy.AddIntent{
		Kind: kind,
		Fields: models.Member{
			FamilyID:  c.opts.FamilyID,
			Name:      req.Name,
			Born:      req.Born,
			Died:      req.Died,
			Relation:  blankToNil(req.Relation),
			Note:      blankToNil(req.Note),
			PhotoURL:  blankToNil(req.PhotoURL),
			ParentID:  blankToNil(req.ParentID),
			Parent2ID: blankToNil(req.Parent2ID),
			SpouseOf:  blankToNil(req.SpouseOf),
		},
		AlsoChildOfTargetID:   blankToNil(req.AlsoChildOf),
		AlsoParentOfTargetIDs: req.AlsoParentOf,
		SelfAdd:               req.SelfAdd,
	}
	if id := blankToNil(req.AnchorID); id != nil {
		anchor, ok := c.store.Get(*id)
		if !ok {
			return genealogy.AddIntent{}, &genealogy.ValidationError{Field: "anchor", Message: "member " + *id + " not found"}
		}
		intent.Anchor = &anchor
	}
	return intent, nil
}

// Add plans and writes a new member. Follow-up links that cannot be applied
// are reported on the result and never fail the add.
func (c *TreeController) Add(ctx context.Context, intent genealogy.AddIntent, photo *PhotoUpload) (*AddResult, error) {
	if !c.opts.CanEdit {
		return nil, ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ValidateMember(&intent.Fields); err != nil {
		return nil, err
	}
	plan, err := genealogy.PlanAdd(c.store.Index(), intent)
	if err != nil {
		return nil, err
	}

	result := &AddResult{Skipped: plan.Skipped}
	member := plan.Member
	member.FamilyID = c.opts.FamilyID
	uid := c.opts.UserID
	member.CreatedBy = &uid

	if photo != nil {
		url, err := c.persist.UploadPhoto(ctx, c.opts.FamilyID, photo.Filename, photo.Reader)
		if err != nil {
			result.PhotoError = (&UploadError{Err: err}).Error()
		} else {
			member.PhotoURL = &url
		}
	}

	saved, err := c.persist.InsertMember(ctx, &member)
	observeMutation("insert", err)
	if err != nil {
		return nil, &PersistenceError{Op: "insert member", Err: err}
	}
	c.store.ApplyInsert(*saved)
	result.Member = saved.Clone()

	for _, f := range plan.FollowUps {
		target, ok := c.store.Get(f.MemberID)
		if !ok {
			result.Skipped = append(result.Skipped, genealogy.SkippedLink{Link: followUpLink(intent, f), TargetID: f.MemberID, Reason: genealogy.SkipNotFound})
			continue
		}
		if err := genealogy.ApplyFollowUp(&target, f, saved.ID); err != nil {
			reason := genealogy.SkipSlotsFull
			if errors.Is(err, genealogy.ErrDuplicateParent) {
				reason = genealogy.SkipDuplicate
			}
			result.Skipped = append(result.Skipped, genealogy.SkippedLink{Link: followUpLink(intent, f), TargetID: f.MemberID, Reason: reason})
			continue
		}
		updated, err := c.persist.UpdateMember(ctx, f.MemberID, map[string]interface{}{f.Slot.Column(): saved.ID})
		observeMutation("update", err)
		if err != nil {
			logger.Warn().Err(err).Str("member_id", f.MemberID).Str("slot", f.Slot.Column()).Msg("follow-up link not written")
			result.Skipped = append(result.Skipped, genealogy.SkippedLink{Link: followUpLink(intent, f), TargetID: f.MemberID, Reason: SkipWriteFailed})
			continue
		}
		c.store.ApplyUpdate(*updated)
		result.FollowUps = append(result.FollowUps, f)
	}

	if plan.LinkSelf {
		id := saved.ID
		err := c.persist.SetSelfLink(ctx, c.opts.UserID, &id)
		observeMutation("link_self", err)
		if err != nil {
			logger.Warn().Err(err).Uint("user_id", c.opts.UserID).Msg("self link not written")
		} else {
			c.store.SetSelfLink(&id)
			result.SelfLinked = true
		}
	}

	for _, s := range result.Skipped {
		skippedLinks.WithLabelValues(string(s.Reason)).Inc()
	}
	return result, nil
}

func followUpLink(intent genealogy.AddIntent, f genealogy.FollowUp) genealogy.Link {
	if intent.Kind == genealogy.KindParent && intent.Anchor != nil && intent.Anchor.ID == f.MemberID {
		return genealogy.LinkParentOfAnchor
	}
	return genealogy.LinkAlsoParentOf
}

// Edit replaces the editable fields of a member. A failed photo upload keeps
// the previous photo and is reported on the result.
func (c *TreeController) Edit(ctx context.Context, id string, req EditMemberRequest, photo *PhotoUpload) (*EditResult, error) {
	if !c.opts.CanEdit {
		return nil, ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.store.Get(id)
	if !ok {
		return nil, ErrMemberNotFound
	}

	next := current.Clone()
	next.Name = strings.TrimSpace(req.Name)
	next.Born = req.Born
	next.Died = req.Died
	next.Relation = blankToNil(req.Relation)
	next.Note = blankToNil(req.Note)
	if req.PhotoURL != nil {
		next.PhotoURL = blankToNil(req.PhotoURL)
	}
	if err := ValidateMember(&next); err != nil {
		return nil, err
	}

	result := &EditResult{}
	if photo != nil {
		url, err := c.persist.UploadPhoto(ctx, c.opts.FamilyID, photo.Filename, photo.Reader)
		if err != nil {
			result.PhotoError = (&UploadError{Err: err}).Error()
		} else {
			next.PhotoURL = &url
		}
	}

	fields := map[string]interface{}{
		"name":      next.Name,
		"born":      next.Born,
		"died":      next.Died,
		"relation":  next.Relation,
		"note":      next.Note,
		"photo_url": next.PhotoURL,
	}
	updated, err := c.persist.UpdateMember(ctx, id, fields)
	observeMutation("update", err)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "update member", Err: err}
	}
	c.store.ApplyUpdate(*updated)
	result.Member = updated.Clone()

	if old := current.PhotoURL; old != nil && (updated.PhotoURL == nil || *updated.PhotoURL != *old) {
		c.releasePhotos(ctx, []string{id}, []string{*old})
	}
	return result, nil
}

// Delete removes the member and all of its descendants in one batch and
// returns the deleted ids.
func (c *TreeController) Delete(ctx context.Context, id string) ([]string, error) {
	if !c.opts.CanEdit {
		return nil, ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.Get(id); !ok {
		return nil, ErrMemberNotFound
	}
	batch := append([]string{id}, c.store.Index().Descendants(id)...)

	var urls []string
	for _, mid := range batch {
		if m, ok := c.store.Get(mid); ok && m.PhotoURL != nil {
			urls = append(urls, *m.PhotoURL)
		}
	}

	err := c.persist.DeleteMembers(ctx, c.opts.FamilyID, batch)
	observeMutation("delete", err)
	if err != nil {
		return nil, &PersistenceError{Op: "delete members", Err: err}
	}
	c.store.ApplyDelete(batch...)

	c.releasePhotos(ctx, batch, urls)
	return batch, nil
}

// releasePhotos queues cleanup for the urls that were uploaded for this
// family and are no longer referenced anywhere.
func (c *TreeController) releasePhotos(ctx context.Context, memberIDs, urls []string) {
	if len(urls) == 0 || c.opts.Queue == nil {
		return
	}
	released, err := c.persist.ReleasablePhotos(ctx, c.opts.FamilyID, urls)
	if err != nil {
		logger.Warn().Err(err).Str("family_id", c.opts.FamilyID).Msg("photo references not checked, cleanup skipped")
		return
	}
	if len(released) == 0 {
		return
	}
	task := &PhotoCleanupTask{FamilyID: c.opts.FamilyID, MemberIDs: memberIDs, URLs: released}
	if err := c.opts.Queue.Enqueue(task); err != nil {
		logger.Warn().Err(err).Str("family_id", c.opts.FamilyID).Msg("photo cleanup not queued")
	}
}

// LinkSelf records that the viewing user is memberID. It overwrites any
// previous link and does not check which family the member belongs to.
func (c *TreeController) LinkSelf(ctx context.Context, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := memberID
	err := c.persist.SetSelfLink(ctx, c.opts.UserID, &id)
	observeMutation("link_self", err)
	if err != nil {
		return &PersistenceError{Op: "set self link", Err: err}
	}
	c.store.SetSelfLink(&id)
	return nil
}

// IsLinked reports whether the viewer's self-link points into this tree.
func (c *TreeController) IsLinked() bool {
	return c.store.IsLinked()
}

func (c *TreeController) Select(id *string) {
	c.store.Select(id)
}

func (c *TreeController) Members() []models.Member {
	return c.store.Members()
}

// Descendants returns the ids below id in breadth-first order.
func (c *TreeController) Descendants(id string) ([]string, error) {
	if _, ok := c.store.Get(id); !ok {
		return nil, ErrMemberNotFound
	}
	return c.store.Index().Descendants(id), nil
}

// Candidates lists the members a client may offer for also-child-of and
// also-parent-of when adding a member of kind next to anchorID.
func (c *TreeController) Candidates(kind genealogy.Kind, anchorID string) (alsoChildOf, alsoParentOf []models.Member, err error) {
	idx := c.store.Index()
	anchor := idx.Get(anchorID)
	if anchor == nil {
		return nil, nil, ErrMemberNotFound
	}
	for _, m := range genealogy.AlsoChildCandidates(idx, kind, anchor) {
		alsoChildOf = append(alsoChildOf, m.Clone())
	}
	for _, m := range genealogy.AlsoParentCandidates(idx, kind, anchor) {
		alsoParentOf = append(alsoParentOf, m.Clone())
	}
	return alsoChildOf, alsoParentOf, nil
}

// Layout builds generations and connectors for the current members.
func (c *TreeController) Layout() *genealogy.Layout {
	start := time.Now()
	l := c.store.Index().BuildLayout(c.opts.Geometry)
	layoutDuration.Observe(time.Since(start).Seconds())
	return l
}
