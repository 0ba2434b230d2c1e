// Package coordinator wires profile, family and item subscriptions into one
// live view per signed-in user.
//
// Each state owns exactly one set of subscriptions and cancels its
// predecessor's before attaching new ones. Listener callbacks are tagged
// with the generation they were registered under, and anything arriving for
// a superseded generation is dropped.
package coordinator

import (
	"context"
	"log"
	"sync"

	"family-organizer/internal/docstore"
	"family-organizer/internal/items"
	"family-organizer/internal/metrics"
	"family-organizer/internal/models"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAwaitingFamily  State = "awaiting_family"
	StateNoFamily        State = "no_family"
	StateReady           State = "ready"
)

// View is the derived state handed to presentation. Items belong to Family
// and are ordered newest first.
type View struct {
	State  State          `json:"state"`
	UserID string         `json:"user_id,omitempty"`
	Family *models.Family `json:"family,omitempty"`
	Items  []models.Item  `json:"items"`
	Error  string         `json:"error,omitempty"`
}

type ProfileSource interface {
	SubscribeProfile(ctx context.Context, userID string, fn func(*models.UserProfile)) (docstore.CancelFunc, error)
}

type FamilySource interface {
	SubscribeFamily(ctx context.Context, id string, fn func(*models.Family)) (docstore.CancelFunc, error)
}

type ItemSource interface {
	SubscribeItems(ctx context.Context, fn func([]models.Item)) (docstore.CancelFunc, error)
}

type Coordinator struct {
	ctx      context.Context
	profiles ProfileSource
	families FamilySource
	items    ItemSource
	metrics  *metrics.Metrics
	onChange func(View)

	mu         sync.Mutex
	state      State
	userID     string
	familyID   string
	family     *models.Family
	list       []models.Item
	haveFamily bool
	haveItems  bool
	lastErr    string
	userGen    uint64
	familyGen  uint64
	closed     bool

	cancelProfile docstore.CancelFunc
	cancelFamily  docstore.CancelFunc
	cancelItems   docstore.CancelFunc

	emitMu  sync.Mutex
	seq     uint64
	emitted uint64
	stopped bool
}

// New returns an Unauthenticated coordinator. onChange, if non-nil, is
// called with every new view; views are never delivered out of order.
func New(ctx context.Context, profiles ProfileSource, families FamilySource, items ItemSource, m *metrics.Metrics, onChange func(View)) *Coordinator {
	c := &Coordinator{
		ctx:      ctx,
		profiles: profiles,
		families: families,
		items:    items,
		metrics:  m,
		onChange: onChange,
		state:    StateUnauthenticated,
	}
	m.StateChange("", string(StateUnauthenticated))
	return c
}

// SetUser starts following userID. Calling it again with the same user is
// a no-op; a different user tears down everything first.
func (c *Coordinator) SetUser(userID string) {
	if userID == "" {
		c.SignOut()
		return
	}

	c.mu.Lock()
	if c.closed || (userID == c.userID && c.state != StateUnauthenticated) {
		c.mu.Unlock()
		return
	}
	c.dropAllLocked()
	c.userGen++
	gen := c.userGen
	c.userID = userID
	c.setStateLocked(StateAwaitingFamily)

	cancel, err := c.profiles.SubscribeProfile(c.ctx, userID, func(p *models.UserProfile) {
		c.onProfile(gen, p)
	})
	if err != nil {
		log.Printf("Profile subscription for user %s failed: %v", userID, err)
		c.lastErr = err.Error()
	} else {
		c.cancelProfile = cancel
	}
	view, seq := c.viewLocked()
	c.mu.Unlock()
	c.emit(view, seq)
}

// SignOut cancels every subscription and returns to Unauthenticated.
func (c *Coordinator) SignOut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.dropAllLocked()
	c.userGen++
	c.userID = ""
	c.setStateLocked(StateUnauthenticated)
	view, seq := c.viewLocked()
	c.mu.Unlock()
	c.emit(view, seq)
}

// Close tears the coordinator down. It waits for a view being delivered and
// no view is emitted after it returns, so it must not be called from
// onChange.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.dropAllLocked()
	c.closed = true
	c.metrics.StateChange(string(c.state), "")
	c.mu.Unlock()

	c.emitMu.Lock()
	c.stopped = true
	c.emitMu.Unlock()
}

// View returns the current derived state.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.viewLocked()
	return v
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) onProfile(gen uint64, p *models.UserProfile) {
	c.mu.Lock()
	if c.closed || gen != c.userGen {
		c.mu.Unlock()
		return
	}

	switch {
	case !p.HasFamily():
		c.dropFamilyLocked()
		c.familyID = ""
		c.setStateLocked(StateNoFamily)
	case *p.FamilyID != c.familyID || c.cancelFamily == nil:
		c.attachFamilyLocked(*p.FamilyID)
	default:
		c.mu.Unlock()
		return
	}

	view, seq := c.viewLocked()
	c.mu.Unlock()
	c.emit(view, seq)
}

// attachFamilyLocked replaces the family and item subscriptions.
func (c *Coordinator) attachFamilyLocked(familyID string) {
	c.dropFamilyLocked()
	c.familyID = familyID
	c.familyGen++
	gen := c.familyGen
	c.setStateLocked(StateAwaitingFamily)

	cancelFamily, err := c.families.SubscribeFamily(c.ctx, familyID, func(f *models.Family) {
		c.onFamily(gen, f)
	})
	if err != nil {
		log.Printf("Family subscription for %s failed: %v", familyID, err)
		c.lastErr = err.Error()
		return
	}
	cancelItems, err := c.items.SubscribeItems(c.ctx, func(all []models.Item) {
		c.onItems(gen, all)
	})
	if err != nil {
		cancelFamily()
		log.Printf("Item subscription for %s failed: %v", familyID, err)
		c.lastErr = err.Error()
		return
	}
	c.cancelFamily = cancelFamily
	c.cancelItems = cancelItems
}

func (c *Coordinator) onFamily(gen uint64, f *models.Family) {
	c.mu.Lock()
	if c.closed || gen != c.familyGen {
		c.mu.Unlock()
		return
	}
	c.family = f
	c.haveFamily = true
	c.advanceLocked()
	view, seq := c.viewLocked()
	c.mu.Unlock()
	c.emit(view, seq)
}

func (c *Coordinator) onItems(gen uint64, all []models.Item) {
	c.mu.Lock()
	if c.closed || gen != c.familyGen {
		c.mu.Unlock()
		return
	}
	c.list = items.ForFamily(all, c.familyID)
	c.haveItems = true
	c.advanceLocked()
	view, seq := c.viewLocked()
	c.mu.Unlock()
	c.emit(view, seq)
}

// advanceLocked settles the state once both family and item snapshots are in.
// A profile pointing at a missing family is shown as NoFamily.
func (c *Coordinator) advanceLocked() {
	switch {
	case c.haveFamily && c.family == nil:
		c.setStateLocked(StateNoFamily)
	case c.haveFamily && c.haveItems:
		c.setStateLocked(StateReady)
	}
}

func (c *Coordinator) dropFamilyLocked() {
	if c.cancelFamily != nil {
		c.cancelFamily()
		c.cancelFamily = nil
	}
	if c.cancelItems != nil {
		c.cancelItems()
		c.cancelItems = nil
	}
	c.familyGen++
	c.family = nil
	c.list = nil
	c.haveFamily = false
	c.haveItems = false
}

func (c *Coordinator) dropAllLocked() {
	if c.cancelProfile != nil {
		c.cancelProfile()
		c.cancelProfile = nil
	}
	c.dropFamilyLocked()
	c.familyID = ""
	c.lastErr = ""
}

func (c *Coordinator) setStateLocked(s State) {
	if s == c.state {
		return
	}
	c.metrics.StateChange(string(c.state), string(s))
	c.state = s
}

func (c *Coordinator) viewLocked() (View, uint64) {
	c.seq++
	v := View{
		State:  c.state,
		UserID: c.userID,
		Items:  append([]models.Item{}, c.list...),
		Error:  c.lastErr,
	}
	if c.family != nil {
		fam := *c.family
		fam.Members = append([]string(nil), c.family.Members...)
		v.Family = &fam
	}
	return v, c.seq
}

// emit delivers v unless a newer view has already gone out.
func (c *Coordinator) emit(v View, seq uint64) {
	if c.onChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.stopped || seq <= c.emitted {
		return
	}
	c.emitted = seq
	c.onChange(v)
}
