package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// memStore backs every storage interface the package uses.
type memStore struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	appts    map[string]model.Appointment
	owners   []model.Owner
	dogs     []model.Dog
	groomers []model.Groomer
	cursors  map[string]string
	writes   int
}

func newMemStore() *memStore {
	return &memStore{
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		appts:   map[string]model.Appointment{},
		cursors: map[string]string{},
	}
}

func (m *memStore) nextID(prefix string) (string, time.Time) {
	m.seq++
	m.clock = m.clock.Add(time.Second)
	return fmt.Sprintf("%s%d", prefix, m.seq), m.clock
}

func (m *memStore) Get(_ context.Context, tenantID, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (m *memStore) GetByExternalID(_ context.Context, tenantID, externalID string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.TenantID == tenantID && a.ExternalEventID == externalID {
			return a, nil
		}
	}
	return model.Appointment{}, model.ErrNotFound
}

func (m *memStore) InsertImported(_ context.Context, appt model.Appointment) (model.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.TenantID == appt.TenantID && a.ExternalEventID == appt.ExternalEventID {
			return a, false, nil
		}
	}
	appt.ID, appt.CreatedAt = m.nextID("a")
	appt.UpdatedAt = appt.CreatedAt
	m.appts[appt.ID] = appt
	m.writes++
	return appt, true, nil
}

func (m *memStore) UpdateSynced(_ context.Context, appt model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[appt.ID]; !ok {
		return model.ErrNotFound
	}
	m.appts[appt.ID] = appt
	m.writes++
	return nil
}

func (m *memStore) DeleteByExternalIDs(_ context.Context, tenantID string, externalIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range externalIDs {
		want[id] = true
	}
	var deleted []string
	for id, a := range m.appts {
		if a.TenantID == tenantID && want[a.ExternalEventID] {
			delete(m.appts, id)
			deleted = append(deleted, id)
			m.writes++
		}
	}
	return deleted, nil
}

func (m *memStore) put(appt model.Appointment) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt.ID, appt.CreatedAt = m.nextID("a")
	m.appts[appt.ID] = appt
	return appt
}

func (m *memStore) byExternal(tenantID, externalID string) (model.Appointment, bool) {
	a, err := m.GetByExternalID(context.Background(), tenantID, externalID)
	return a, err == nil
}

func (m *memStore) FindOwners(_ context.Context, tenantID, _ string) ([]model.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Owner
	for _, o := range m.owners {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) FindDogs(_ context.Context, tenantID, _ string) ([]model.Dog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Dog
	for _, d := range m.dogs {
		if d.TenantID == tenantID {
			out = append(out, m.withOwner(d))
		}
	}
	return out, nil
}

func (m *memStore) FindGroomers(_ context.Context, tenantID, _ string) ([]model.Groomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Groomer
	for _, g := range m.groomers {
		if g.TenantID == tenantID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) CreateOwner(_ context.Context, o model.Owner) (model.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID, o.CreatedAt = m.nextID("o")
	m.owners = append(m.owners, o)
	return o, nil
}

func (m *memStore) CreateDog(_ context.Context, d model.Dog) (model.Dog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID, d.CreatedAt = m.nextID("d")
	m.dogs = append(m.dogs, d)
	return d, nil
}

func (m *memStore) GetDog(_ context.Context, tenantID, id string) (model.Dog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.dogs {
		if d.ID == id && d.TenantID == tenantID {
			return m.withOwner(d), nil
		}
	}
	return model.Dog{}, model.ErrNotFound
}

func (m *memStore) GetGroomer(_ context.Context, tenantID, id string) (model.Groomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groomers {
		if g.ID == id && g.TenantID == tenantID {
			return g, nil
		}
	}
	return model.Groomer{}, model.ErrNotFound
}

func (m *memStore) withOwner(d model.Dog) model.Dog {
	for i := range m.owners {
		if m.owners[i].ID == d.OwnerID {
			o := m.owners[i]
			d.Owner = &o
		}
	}
	return d
}

func (m *memStore) LoadCursor(_ context.Context, tenantID, calendarID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[tenantID+"/"+calendarID], nil
}

func (m *memStore) SaveCursor(_ context.Context, tenantID, calendarID, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[tenantID+"/"+calendarID] = cursor
	return nil
}

func (m *memStore) ClearCursor(_ context.Context, tenantID, calendarID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, tenantID+"/"+calendarID)
	return nil
}
