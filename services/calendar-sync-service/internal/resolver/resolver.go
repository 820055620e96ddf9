// Package resolver maps free-text owner, dog and groomer names from calendar
// events onto directory records, synthesizing owners and dogs when needed.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// Directory lists candidate records for a raw name. Implementations may
// return a superset; the tiering happens here.
type Directory interface {
	FindOwners(ctx context.Context, tenantID, name string) ([]model.Owner, error)
	// FindDogs returns candidates with Owner populated.
	FindDogs(ctx context.Context, tenantID, name string) ([]model.Dog, error)
	FindGroomers(ctx context.Context, tenantID, name string) ([]model.Groomer, error)
	CreateOwner(ctx context.Context, o model.Owner) (model.Owner, error)
	CreateDog(ctx context.Context, d model.Dog) (model.Dog, error)
}

// State is the outcome of owner and dog matching before any synthesis.
type State int

const (
	BothMatched State = iota
	OwnerMissing
	DogMissing
	BothMissing
)

func (s State) String() string {
	switch s {
	case BothMatched:
		return "both_matched"
	case OwnerMissing:
		return "owner_missing"
	case DogMissing:
		return "dog_missing"
	case BothMissing:
		return "both_missing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Input struct {
	Owner   string
	Dog     string
	Groomer string
}

type Resolution struct {
	Owner   *model.Owner
	Dog     *model.Dog
	Groomer *model.Groomer
	// Ambiguous is set when some tier held more than one candidate and the
	// oldest was taken.
	Ambiguous    bool
	State        State
	CreatedOwner bool
	CreatedDog   bool
}

type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

func New(dir Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, tenantID string, in Input) (Resolution, error) {
	ownerName := strings.TrimSpace(in.Owner)
	dogName := strings.TrimSpace(in.Dog)
	ownerNamed := ownerName != "" && !model.IsPlaceholderOwner(ownerName)
	dogNamed := dogName != "" && !model.IsPlaceholderDog(dogName)

	var res Resolution

	if ownerNamed {
		owners, err := r.dir.FindOwners(ctx, tenantID, ownerName)
		if err != nil {
			return Resolution{}, fmt.Errorf("find owners: %w", err)
		}
		owners = filter(owners, func(o model.Owner) bool { return !model.IsPlaceholderOwner(o.Name) })
		if o, amb, ok := pick(owners, ownerName, func(o model.Owner) string { return o.Name }, ownerKey); ok {
			res.Owner = &o
			res.Ambiguous = res.Ambiguous || amb
		}
	}

	if dogNamed {
		dogs, err := r.dir.FindDogs(ctx, tenantID, dogName)
		if err != nil {
			return Resolution{}, fmt.Errorf("find dogs: %w", err)
		}
		dogs = filter(dogs, func(d model.Dog) bool { return !model.IsPlaceholderDog(d.Name) })
		// A matched owner narrows the search to their dogs; a same-named dog
		// elsewhere in the tenant is someone else's.
		if res.Owner != nil {
			ownerID := res.Owner.ID
			dogs = filter(dogs, func(d model.Dog) bool { return d.OwnerID == ownerID })
		}
		if d, amb, ok := pick(dogs, dogName, func(d model.Dog) string { return d.Name }, dogKey); ok {
			res.Dog = &d
			res.Ambiguous = res.Ambiguous || amb
		}
	}

	var err error
	switch {
	case res.Owner != nil && res.Dog != nil:
		res.State = BothMatched
	case res.Dog != nil && !ownerNamed:
		res.State = BothMatched
		res.Owner = res.Dog.Owner
	case res.Dog != nil:
		res.State = OwnerMissing
		err = r.synthesize(ctx, tenantID, &res, ownerName, dogName)
	case res.Owner != nil:
		res.State = DogMissing
		if dogNamed {
			err = r.synthesizeDog(ctx, tenantID, &res, dogName)
		}
	default:
		res.State = BothMissing
		if !ownerNamed {
			ownerName = model.UnknownOwner
		}
		if !dogNamed {
			dogName = model.UnknownDog
		}
		err = r.synthesize(ctx, tenantID, &res, ownerName, dogName)
	}
	if err != nil {
		return Resolution{}, err
	}

	if strings.TrimSpace(in.Groomer) != "" {
		g, amb, err := r.ResolveGroomer(ctx, tenantID, in.Groomer)
		if err != nil {
			return Resolution{}, err
		}
		res.Groomer = g
		res.Ambiguous = res.Ambiguous || amb
	}
	return res, nil
}

// ResolveGroomer matches by username. Groomers are staff accounts and are
// never created here; no match returns nil.
func (r *Resolver) ResolveGroomer(ctx context.Context, tenantID, raw string) (*model.Groomer, bool, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return nil, false, nil
	}
	groomers, err := r.dir.FindGroomers(ctx, tenantID, name)
	if err != nil {
		return nil, false, fmt.Errorf("find groomers: %w", err)
	}
	g, amb, ok := pick(groomers, name, func(g model.Groomer) string { return g.Username }, groomerKey)
	if !ok {
		return nil, false, nil
	}
	return &g, amb, nil
}

// synthesize creates the owner first, then the dog under it.
func (r *Resolver) synthesize(ctx context.Context, tenantID string, res *Resolution, ownerName, dogName string) error {
	owner, err := r.dir.CreateOwner(ctx, model.Owner{
		TenantID: tenantID,
		Name:     ownerName,
		Phone:    "pending-" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	res.Owner = &owner
	res.CreatedOwner = true
	r.logger.Info("resolver: synthesized owner", "tenant_id", tenantID, "owner_id", owner.ID, "state", res.State.String())
	return r.synthesizeDog(ctx, tenantID, res, dogName)
}

func (r *Resolver) synthesizeDog(ctx context.Context, tenantID string, res *Resolution, dogName string) error {
	dog, err := r.dir.CreateDog(ctx, model.Dog{
		TenantID: tenantID,
		OwnerID:  res.Owner.ID,
		Name:     dogName,
	})
	if err != nil {
		return fmt.Errorf("create dog: %w", err)
	}
	dog.Owner = res.Owner
	res.Dog = &dog
	res.CreatedDog = true
	r.logger.Info("resolver: synthesized dog", "tenant_id", tenantID, "dog_id", dog.ID, "state", res.State.String())
	return nil
}

type sortKey struct {
	created int64
	id      string
}

func ownerKey(o model.Owner) sortKey     { return sortKey{o.CreatedAt.UnixNano(), o.ID} }
func dogKey(d model.Dog) sortKey         { return sortKey{d.CreatedAt.UnixNano(), d.ID} }
func groomerKey(g model.Groomer) sortKey { return sortKey{g.CreatedAt.UnixNano(), g.ID} }

// pick applies the matching tiers: exact full name, then the raw name equal
// to the first word of the stored name. Within the winning tier the oldest
// record wins and a tie is reported as ambiguous.
func pick[T any](cands []T, raw string, name func(T) string, key func(T) sortKey) (T, bool, bool) {
	var zero T
	want := model.NormalizeName(raw)
	if want == "" {
		return zero, false, false
	}
	exact := filter(cands, func(c T) bool { return model.NormalizeName(name(c)) == want })
	if len(exact) == 0 {
		exact = filter(cands, func(c T) bool { return firstToken(name(c)) == want })
	}
	if len(exact) == 0 {
		return zero, false, false
	}
	sort.SliceStable(exact, func(i, j int) bool {
		a, b := key(exact[i]), key(exact[j])
		if a.created != b.created {
			return a.created < b.created
		}
		return a.id < b.id
	})
	return exact[0], len(exact) > 1, true
}

func firstToken(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func filter[T any](in []T, keep func(T) bool) []T {
	var out []T
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
