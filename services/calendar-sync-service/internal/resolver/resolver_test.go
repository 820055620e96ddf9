package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

type memDirectory struct {
	owners   []model.Owner
	dogs     []model.Dog
	groomers []model.Groomer
	seq      int
	clock    time.Time
}

func newMemDirectory() *memDirectory {
	return &memDirectory{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memDirectory) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memDirectory) addOwner(tenant, name string) model.Owner {
	o, _ := m.CreateOwner(context.Background(), model.Owner{TenantID: tenant, Name: name})
	return o
}

func (m *memDirectory) addDog(owner model.Owner, name string) model.Dog {
	d, _ := m.CreateDog(context.Background(), model.Dog{TenantID: owner.TenantID, OwnerID: owner.ID, Name: name})
	return d
}

func (m *memDirectory) FindOwners(_ context.Context, tenantID, _ string) ([]model.Owner, error) {
	var out []model.Owner
	for _, o := range m.owners {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memDirectory) FindDogs(_ context.Context, tenantID, _ string) ([]model.Dog, error) {
	var out []model.Dog
	for _, d := range m.dogs {
		if d.TenantID != tenantID {
			continue
		}
		for i := range m.owners {
			if m.owners[i].ID == d.OwnerID {
				o := m.owners[i]
				d.Owner = &o
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *memDirectory) FindGroomers(_ context.Context, tenantID, _ string) ([]model.Groomer, error) {
	var out []model.Groomer
	for _, g := range m.groomers {
		if g.TenantID == tenantID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memDirectory) CreateOwner(_ context.Context, o model.Owner) (model.Owner, error) {
	m.seq++
	o.ID = fmt.Sprintf("o%d", m.seq)
	o.CreatedAt = m.tick()
	m.owners = append(m.owners, o)
	return o, nil
}

func (m *memDirectory) CreateDog(_ context.Context, d model.Dog) (model.Dog, error) {
	m.seq++
	d.ID = fmt.Sprintf("d%d", m.seq)
	d.CreatedAt = m.tick()
	m.dogs = append(m.dogs, d)
	return d, nil
}

func TestOwnerMatchingTiers(t *testing.T) {
	dir := newMemDirectory()
	john := dir.addOwner("t1", "John Smith")
	rex := dir.addDog(john, "Rex")
	r := New(dir, nil)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "t1", Input{Owner: "john", Dog: "rex"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != BothMatched || res.Owner.ID != john.ID || res.Dog.ID != rex.ID || res.Ambiguous {
		t.Fatalf("john: %+v", res)
	}

	res, err = r.Resolve(ctx, "t1", Input{Owner: "  JOHN   smith ", Dog: "Rex"})
	if err != nil || res.Owner.ID != john.ID {
		t.Fatalf("exact: %+v %v", res, err)
	}

	res, err = r.Resolve(ctx, "t1", Input{Owner: "Jonathan", Dog: "Rex"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != OwnerMissing || res.Owner.ID == john.ID || res.Owner.Name != "Jonathan" {
		t.Fatalf("Jonathan must not match John Smith: %+v", res)
	}
	if !res.CreatedOwner || !res.CreatedDog || res.Dog.OwnerID != res.Owner.ID || res.Dog.Name != "Rex" {
		t.Fatalf("owner-missing synthesis: %+v", res)
	}
	if !strings.HasPrefix(res.Owner.Phone, "pending-") {
		t.Fatalf("synthesized phone = %q", res.Owner.Phone)
	}
}

func TestExactTierBeatsFirstToken(t *testing.T) {
	dir := newMemDirectory()
	dir.addOwner("t1", "Sam Jones")
	sam := dir.addOwner("t1", "Sam")
	r := New(dir, nil)

	o := mustOwner(t, r, "t1", "sam")
	if o.ID != sam.ID {
		t.Fatalf("matched %+v, want exact %q", o, sam.ID)
	}
}

func TestAmbiguousTakesOldest(t *testing.T) {
	dir := newMemDirectory()
	first := dir.addOwner("t1", "Ann Lee")
	dir.addOwner("t1", "Ann Park")
	dog := dir.addDog(first, "Milo")
	r := New(dir, nil)

	res, err := r.Resolve(context.Background(), "t1", Input{Owner: "Ann", Dog: "Milo"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Owner.ID != first.ID || res.Dog.ID != dog.ID || !res.Ambiguous {
		t.Fatalf("res = %+v", res)
	}
}

func TestPlaceholderDogUnderMatchedOwnerCreatesNothing(t *testing.T) {
	dir := newMemDirectory()
	dir.addOwner("t1", "John Smith")
	r := New(dir, nil)
	dogsBefore := len(dir.dogs)

	for _, raw := range []string{"Unknown Dog", " unknown   DOG ", ""} {
		res, err := r.Resolve(context.Background(), "t1", Input{Owner: "John Smith", Dog: raw})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.State != DogMissing || res.Dog != nil || res.CreatedDog || res.CreatedOwner {
			t.Fatalf("dog %q: %+v", raw, res)
		}
	}
	if len(dir.dogs) != dogsBefore {
		t.Fatalf("dog rows created: %d -> %d", dogsBefore, len(dir.dogs))
	}
}

func TestDogMissingCreatesUnderOwner(t *testing.T) {
	dir := newMemDirectory()
	john := dir.addOwner("t1", "John Smith")
	other := dir.addOwner("t1", "Mary Major")
	dir.addDog(other, "Rex")
	r := New(dir, nil)

	res, err := r.Resolve(context.Background(), "t1", Input{Owner: "John Smith", Dog: "Rex"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != DogMissing || !res.CreatedDog || res.Dog.OwnerID != john.ID {
		t.Fatalf("res = %+v", res)
	}
}

func TestBothMissing(t *testing.T) {
	dir := newMemDirectory()
	r := New(dir, nil)

	res, err := r.Resolve(context.Background(), "t1", Input{Owner: "Jane Doe"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != BothMissing || res.Owner.Name != "Jane Doe" || res.Dog.Name != model.UnknownDog {
		t.Fatalf("res = %+v", res)
	}
	if res.Dog.Owner == nil || res.Dog.Owner.ID != res.Owner.ID {
		t.Fatalf("dog owner not linked: %+v", res.Dog)
	}

	res, err = r.Resolve(context.Background(), "t1", Input{Owner: "Unknown Owner", Dog: "Unknown Dog"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != BothMissing || res.Owner.Name != model.UnknownOwner || res.Dog.Name != model.UnknownDog {
		t.Fatalf("placeholders: %+v", res)
	}
	if len(dir.owners) != 2 || len(dir.dogs) != 2 {
		t.Fatalf("placeholders must never match existing placeholder rows: owners=%d dogs=%d", len(dir.owners), len(dir.dogs))
	}
}

func TestBlankOwnerInferredFromDog(t *testing.T) {
	dir := newMemDirectory()
	john := dir.addOwner("t1", "John Smith")
	rex := dir.addDog(john, "Rex")
	r := New(dir, nil)

	res, err := r.Resolve(context.Background(), "t1", Input{Dog: "Rex"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != BothMatched || res.Dog.ID != rex.ID || res.Owner == nil || res.Owner.ID != john.ID || res.CreatedOwner {
		t.Fatalf("res = %+v", res)
	}
}

func TestTenantIsolation(t *testing.T) {
	dir := newMemDirectory()
	dir.addOwner("t2", "John Smith")
	r := New(dir, nil)

	res, err := r.Resolve(context.Background(), "t1", Input{Owner: "John Smith", Dog: "Rex"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.State != BothMissing || res.Owner.TenantID != "t1" {
		t.Fatalf("res = %+v", res)
	}
}

func TestResolveGroomer(t *testing.T) {
	dir := newMemDirectory()
	dir.groomers = []model.Groomer{
		{ID: "g1", TenantID: "t1", Username: "alex smith", CreatedAt: time.Unix(1, 0)},
		{ID: "g2", TenantID: "t1", Username: "Alex", CreatedAt: time.Unix(2, 0)},
	}
	r := New(dir, nil)
	ctx := context.Background()

	g, amb, err := r.ResolveGroomer(ctx, "t1", "alex")
	if err != nil || g == nil || g.ID != "g2" || amb {
		t.Fatalf("exact username: %+v %v %v", g, amb, err)
	}
	g, _, err = r.ResolveGroomer(ctx, "t1", "Jordan")
	if err != nil || g != nil {
		t.Fatalf("unknown groomer must not be synthesized: %+v %v", g, err)
	}
	if len(dir.groomers) != 2 {
		t.Fatalf("groomers = %d", len(dir.groomers))
	}
}

func mustOwner(t *testing.T, r *Resolver, tenant, name string) *model.Owner {
	t.Helper()
	res, err := r.Resolve(context.Background(), tenant, Input{Owner: name})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res.Owner
}
