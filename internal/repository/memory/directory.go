package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
)

// Directory serves users, contracts, assignments and payments from memory.
// It implements repository.UserRepository; Contracts exposes the contract view.
type Directory struct {
	mu          sync.RWMutex
	users       map[int64]*model.User
	contracts   map[int64]*model.Contract
	assignments map[int64][]*model.ContractAssignment
	payments    []*model.PaymentDue

	// Err, when set, is returned from every lookup.
	Err error
}

func NewDirectory() *Directory {
	return &Directory{
		users:       make(map[int64]*model.User),
		contracts:   make(map[int64]*model.Contract),
		assignments: make(map[int64][]*model.ContractAssignment),
	}
}

var (
	_ repository.UserRepository     = (*Directory)(nil)
	_ repository.ContractRepository = contractView{}
)

func (d *Directory) AddUser(u model.User) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = &u
	return d
}

func (d *Directory) AddContract(c model.Contract) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contracts[c.ID] = &c
	return d
}

func (d *Directory) Assign(a model.ContractAssignment) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignments[a.ContractID] = append(d.assignments[a.ContractID], &a)
	return d
}

func (d *Directory) AddPayment(p model.PaymentDue) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payments = append(d.payments, &p)
	return d
}

func (d *Directory) Get(ctx context.Context, id int64) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *Directory) ListActive(ctx context.Context) ([]*model.User, error) {
	return d.listUsers(func(u *model.User) bool { return u.IsActive })
}

func (d *Directory) ListActiveAdmins(ctx context.Context) ([]*model.User, error) {
	return d.listUsers(func(u *model.User) bool { return u.IsActive && u.IsAdmin() })
}

func (d *Directory) listUsers(keep func(*model.User) bool) ([]*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	var out []*model.User
	for _, u := range d.users {
		if keep(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Contracts returns the same directory viewed as a ContractRepository.
func (d *Directory) Contracts() repository.ContractRepository {
	return contractView{d}
}

type contractView struct {
	d *Directory
}

func (v contractView) Get(ctx context.Context, id int64) (*model.Contract, error) {
	d := v.d
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	c, ok := d.contracts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (v contractView) ListAssignments(ctx context.Context, contractID int64) ([]*model.ContractAssignment, error) {
	d := v.d
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]*model.ContractAssignment, 0, len(d.assignments[contractID]))
	for _, a := range d.assignments[contractID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (v contractView) ListExpiring(ctx context.Context, from, to time.Time) ([]*model.Contract, error) {
	d := v.d
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	var out []*model.Contract
	for _, c := range d.contracts {
		if c.ExpiresAt == nil || c.ExpiresAt.Before(from) || !c.ExpiresAt.Before(to) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (v contractView) ListOverduePayments(ctx context.Context, asOf time.Time) ([]*model.PaymentDue, error) {
	d := v.d
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.Err != nil {
		return nil, d.Err
	}
	var out []*model.PaymentDue
	for _, p := range d.payments {
		if p.DueDate.Before(asOf) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ErrUnavailable simulates a directory outage in tests.
var ErrUnavailable = errors.New("directory unavailable")
