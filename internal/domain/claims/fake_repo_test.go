package claims

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memState struct {
	claims       []*Claim
	providers    map[string]int64
	patients     map[string]int64
	details      []ClaimDetail
	nextClaim    int64
	nextProvider int64
	nextPatient  int64
}

func (s *memState) clone() *memState {
	c := &memState{
		claims:       append([]*Claim(nil), s.claims...),
		providers:    make(map[string]int64, len(s.providers)),
		patients:     make(map[string]int64, len(s.patients)),
		details:      append([]ClaimDetail(nil), s.details...),
		nextClaim:    s.nextClaim,
		nextProvider: s.nextProvider,
		nextPatient:  s.nextPatient,
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	return c
}

// memRepo is a transactional in-memory Repository. Each WithinTx call works
// on a copy of the committed state and swaps it in only on success.
type memRepo struct {
	mu    sync.Mutex
	state *memState
	clock time.Time

	// providerConflicts makes InsertProviders fail that many times. Before
	// failing, the missing providers are committed as if by another writer.
	providerConflicts int
	// stickyConflict makes every InsertProviders call conflict.
	stickyConflict bool
	detailErr      error

	txCount         int
	insertProviders [][]string
	insertPatients  [][]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		state: &memState{providers: map[string]int64{}, patients: map[string]int64{}},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	work := &memUOW{repo: r, state: r.state.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.state = work.state
	return nil
}

func (r *memRepo) ListClaims(_ context.Context, limit, offset int) ([]*Claim, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append([]*Claim(nil), r.state.claims...)
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Created.Equal(all[j].Created) {
			return all[i].Created.After(all[j].Created)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memRepo) ClaimExists(_ context.Context, claimID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.state.claims {
		if c.ID == claimID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) GetClaimDetails(_ context.Context, claimID int64) ([]*ClaimDetailView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	npiOf := invert(r.state.providers)
	subOf := invert(r.state.patients)
	var out []*ClaimDetailView
	for _, d := range r.state.details {
		if d.ClaimID != claimID {
			continue
		}
		out = append(out, &ClaimDetailView{
			ClaimID:            d.ClaimID,
			ServiceDate:        d.ServiceDate,
			SubmittedProcedure: d.SubmittedProcedure,
			Quadrant:           d.Quadrant,
			Group:              d.Group,
			Subscriber:         subOf[d.PatientID],
			NPI:                npiOf[d.ProviderID],
			ProviderFees:       NewMoney(d.ProviderFees),
			AllowedFees:        NewMoney(d.AllowedFees),
			MemberCoInsurance:  NewMoney(d.MemberCoInsurance),
			MemberCoPay:        NewMoney(d.MemberCoPay),
			NetFees:            NewMoney(d.NetFees),
		})
	}
	return out, nil
}

func (r *memRepo) TopProviders(_ context.Context, n int) ([]*ProviderNetFee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := map[int64]*ProviderNetFee{}
	npiOf := invert(r.state.providers)
	for _, d := range r.state.details {
		pf, ok := totals[d.ProviderID]
		if !ok {
			pf = &ProviderNetFee{ProviderNPI: npiOf[d.ProviderID]}
			totals[d.ProviderID] = pf
		}
		pf.TotalNetFees = NewMoney(pf.TotalNetFees.Add(d.NetFees))
	}
	ids := make([]int64, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := totals[ids[i]].TotalNetFees, totals[ids[j]].TotalNetFees
		if !a.Equal(b.Decimal) {
			return a.GreaterThan(b.Decimal)
		}
		return ids[i] < ids[j]
	})
	var out []*ProviderNetFee
	for i, id := range ids {
		if i == n {
			break
		}
		out = append(out, totals[id])
	}
	return out, nil
}

func (r *memRepo) providerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.providers)
}

func (r *memRepo) patientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.patients)
}

func (r *memRepo) claimCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.claims)
}

func (r *memRepo) detailCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.details)
}

type memUOW struct {
	repo  *memRepo
	state *memState
}

func (u *memUOW) CreateClaim(_ context.Context) (*Claim, error) {
	u.state.nextClaim++
	now := u.repo.tick()
	c := &Claim{ID: u.state.nextClaim, Created: now, Updated: now}
	u.state.claims = append(u.state.claims, c)
	return c, nil
}

func (u *memUOW) InsertDetails(_ context.Context, details []ClaimDetail) error {
	if u.repo.detailErr != nil {
		return u.repo.detailErr
	}
	u.state.details = append(u.state.details, details...)
	return nil
}

func (u *memUOW) FindProvidersByNPI(_ context.Context, npis []string) (map[string]int64, error) {
	return pick(u.state.providers, npis), nil
}

func (u *memUOW) FindPatientsBySubscriberID(_ context.Context, ids []string) (map[string]int64, error) {
	return pick(u.state.patients, ids), nil
}

func (u *memUOW) InsertProviders(_ context.Context, npis []string) (map[string]int64, error) {
	u.repo.insertProviders = append(u.repo.insertProviders, append([]string(nil), npis...))
	if u.repo.stickyConflict {
		return nil, fmt.Errorf("%w: duplicate key value violates unique constraint %q", ErrConflict, providerNPIKey)
	}
	if u.repo.providerConflicts > 0 {
		u.repo.providerConflicts--
		for _, npi := range npis {
			u.repo.state.nextProvider++
			u.repo.state.providers[npi] = u.repo.state.nextProvider
		}
		return nil, fmt.Errorf("%w: duplicate key value violates unique constraint %q", ErrConflict, providerNPIKey)
	}
	out := make(map[string]int64, len(npis))
	for _, npi := range npis {
		if _, ok := u.state.providers[npi]; ok {
			return nil, fmt.Errorf("%w: npi %s", ErrConflict, npi)
		}
		u.state.nextProvider++
		u.state.providers[npi] = u.state.nextProvider
		out[npi] = u.state.nextProvider
	}
	return out, nil
}

func (u *memUOW) InsertPatients(_ context.Context, ids []string) (map[string]int64, error) {
	u.repo.insertPatients = append(u.repo.insertPatients, append([]string(nil), ids...))
	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		if _, ok := u.state.patients[id]; ok {
			return nil, fmt.Errorf("%w: subscriber %s", ErrConflict, id)
		}
		u.state.nextPatient++
		u.state.patients[id] = u.state.nextPatient
		out[id] = u.state.nextPatient
	}
	return out, nil
}

func pick(m map[string]int64, keys []string) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if id, ok := m[k]; ok {
			out[k] = id
		}
	}
	return out
}

func invert(m map[string]int64) map[int64]string {
	out := make(map[int64]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

var errStorage = errors.New("connection reset by peer")
