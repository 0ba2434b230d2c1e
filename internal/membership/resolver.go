// Package membership maps users to families and handles create, join and
// leave.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"family-organizer/internal/directory"
	"family-organizer/internal/docstore"
	"family-organizer/internal/metrics"
	"family-organizer/internal/models"
)

var (
	ErrInvalidName        = errors.New("family name is required")
	ErrFamilyNotFound     = directory.ErrFamilyNotFound
	ErrMembershipConflict = errors.New("family membership changed concurrently, retries exhausted")
)

// AppendMode selects how a joining user is added to the member list.
type AppendMode string

const (
	// AppendAtomic uses the store's append-unique primitive.
	AppendAtomic AppendMode = "atomic"
	// AppendOptimistic re-reads and writes conditionally on the document version.
	AppendOptimistic AppendMode = "optimistic"
	// AppendLegacy is an unguarded read-modify-write. Two concurrent joins can
	// lose one of the appends.
	AppendLegacy AppendMode = "legacy"
)

const DefaultMaxRetries = 5

// ParseAppendMode accepts the config spelling of a mode.
func ParseAppendMode(s string) (AppendMode, error) {
	switch m := AppendMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AppendAtomic, nil
	case AppendAtomic, AppendOptimistic, AppendLegacy:
		return m, nil
	default:
		return "", fmt.Errorf("unknown member append mode %q", s)
	}
}

type Options struct {
	Mode       AppendMode
	MaxRetries int
	Metrics    *metrics.Metrics
	// NewCode overrides invite code generation.
	NewCode func() (string, error)
}

type Resolver struct {
	store      docstore.Store
	paths      docstore.Paths
	directory  *directory.Directory
	mode       AppendMode
	maxRetries int
	metrics    *metrics.Metrics
	newCode    func() (string, error)
}

func NewResolver(store docstore.Store, paths docstore.Paths, dir *directory.Directory, opts Options) *Resolver {
	r := &Resolver{
		store:      store,
		paths:      paths,
		directory:  dir,
		mode:       opts.Mode,
		maxRetries: opts.MaxRetries,
		metrics:    opts.Metrics,
		newCode:    opts.NewCode,
	}
	if r.mode == "" {
		r.mode = AppendAtomic
	}
	if r.maxRetries <= 0 {
		r.maxRetries = DefaultMaxRetries
	}
	if r.newCode == nil {
		r.newCode = GenerateCode
	}
	return r
}

// Mode reports the configured append strategy.
func (r *Resolver) Mode() AppendMode {
	return r.mode
}

// ResolveFamily returns the user's family id, or ok=false when the user has
// no profile or the profile has no family.
func (r *Resolver) ResolveFamily(ctx context.Context, userID string) (familyID string, ok bool, err error) {
	profile, err := r.Profile(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !profile.HasFamily() {
		return "", false, nil
	}
	return *profile.FamilyID, true, nil
}

// Profile reads the user's profile. A missing profile reads as an empty one.
func (r *Resolver) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	doc, err := r.store.Get(ctx, r.paths.Profile(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return models.ProfileFromDocument(userID, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return models.ProfileFromDocument(userID, doc), nil
}

// SubscribeProfile pushes the user's profile on every change.
func (r *Resolver) SubscribeProfile(ctx context.Context, userID string, fn func(*models.UserProfile)) (docstore.CancelFunc, error) {
	cancel, err := r.store.SubscribeDoc(ctx, r.paths.Profile(userID), func(doc *docstore.Document) {
		fn(models.ProfileFromDocument(userID, doc))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to profile: %w", err)
	}
	return cancel, nil
}

// CreateFamily creates a family with the caller as its only member and links
// the caller's profile to it. The two writes are not atomic: a failure in
// between leaves a joinable family that no profile points at.
func (r *Resolver) CreateFamily(ctx context.Context, userID, name string) (*models.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		r.metrics.Operation("create_family", metrics.ResultInvalid)
		return nil, ErrInvalidName
	}

	code, err := r.newCode()
	if err != nil {
		r.metrics.Operation("create_family", metrics.ResultError)
		return nil, err
	}

	if err := r.store.Set(ctx, r.paths.Family(code), models.NewFamilyFields(name, userID)); err != nil {
		r.metrics.Operation("create_family", metrics.ResultError)
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	if err := r.store.Set(ctx, r.paths.Profile(userID), models.ProfileFields(code)); err != nil {
		log.Printf("Family %s created but profile link for user %s failed: %v", code, userID, err)
		r.metrics.Operation("create_family", metrics.ResultError)
		return nil, fmt.Errorf("failed to link profile to family %s: %w", code, err)
	}

	r.metrics.Operation("create_family", metrics.ResultOK)
	log.Printf("User %s created family %s", userID, code)

	family, err := r.directory.GetFamily(ctx, code)
	if err != nil {
		return &models.Family{ID: code, Name: name, Members: []string{userID}}, nil
	}
	return family, nil
}

// JoinFamily adds the caller to the family identified by code and links the
// caller's profile to it. An unknown code returns ErrFamilyNotFound and
// leaves the profile untouched.
func (r *Resolver) JoinFamily(ctx context.Context, userID, code string) (*models.Family, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		r.metrics.Operation("join_family", metrics.ResultNotFound)
		return nil, ErrFamilyNotFound
	}

	var err error
	switch r.mode {
	case AppendOptimistic:
		err = r.appendOptimistic(ctx, code, userID)
	case AppendLegacy:
		err = r.appendLegacy(ctx, code, userID)
	default:
		err = r.appendAtomic(ctx, code, userID)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrFamilyNotFound):
			r.metrics.Operation("join_family", metrics.ResultNotFound)
		case errors.Is(err, ErrMembershipConflict):
			r.metrics.Operation("join_family", metrics.ResultConflict)
		default:
			r.metrics.Operation("join_family", metrics.ResultError)
		}
		return nil, err
	}

	if err := r.store.Set(ctx, r.paths.Profile(userID), models.ProfileFields(code)); err != nil {
		r.metrics.Operation("join_family", metrics.ResultError)
		return nil, fmt.Errorf("failed to link profile to family %s: %w", code, err)
	}

	r.metrics.Operation("join_family", metrics.ResultOK)
	log.Printf("User %s joined family %s", userID, code)

	// The join itself succeeded.
	family, err := r.directory.GetFamily(ctx, code)
	if err != nil {
		log.Printf("Failed to reload family %s after join: %v", code, err)
		return &models.Family{ID: code, Members: []string{userID}}, nil
	}
	return family, nil
}

// LeaveFamily clears the caller's family link. The member list of the family
// is left as it is.
func (r *Resolver) LeaveFamily(ctx context.Context, userID string) error {
	if err := r.store.Set(ctx, r.paths.Profile(userID), models.ProfileFields("")); err != nil {
		r.metrics.Operation("leave_family", metrics.ResultError)
		return fmt.Errorf("failed to leave family: %w", err)
	}
	r.metrics.Operation("leave_family", metrics.ResultOK)
	log.Printf("User %s left their family", userID)
	return nil
}

func (r *Resolver) appendAtomic(ctx context.Context, code, userID string) error {
	err := r.store.AppendUnique(ctx, r.paths.Family(code), models.FieldMembers, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrFamilyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to join family: %w", err)
	}
	return nil
}

func (r *Resolver) appendOptimistic(ctx context.Context, code, userID string) error {
	path := r.paths.Family(code)
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		doc, err := r.store.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrFamilyNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read family: %w", err)
		}

		family := models.FamilyFromDocument(doc)
		if family.HasMember(userID) {
			return nil
		}

		members := append(family.Members, userID)
		err = r.store.UpdateIfVersion(ctx, path, doc.Version, models.MembersFields(members))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, docstore.ErrVersionConflict):
			r.metrics.JoinRetry()
			continue
		case errors.Is(err, docstore.ErrNotFound):
			return ErrFamilyNotFound
		default:
			return fmt.Errorf("failed to join family: %w", err)
		}
	}
	return ErrMembershipConflict
}

func (r *Resolver) appendLegacy(ctx context.Context, code, userID string) error {
	path := r.paths.Family(code)
	doc, err := r.store.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrFamilyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read family: %w", err)
	}

	family := models.FamilyFromDocument(doc)
	members := append(family.Members, userID)
	if err := r.store.Update(ctx, path, models.MembersFields(members)); err != nil {
		return fmt.Errorf("failed to join family: %w", err)
	}
	return nil
}
