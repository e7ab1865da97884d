package claims

import (
	"context"
	"fmt"
)

// EntityStore is the slice of the unit of work the reconciler needs. All
// methods take and return business keys mapped to surrogate ids.
type EntityStore interface {
	FindProvidersByNPI(ctx context.Context, npis []string) (map[string]int64, error)
	FindPatientsBySubscriberID(ctx context.Context, subscriberIDs []string) (map[string]int64, error)
	InsertProviders(ctx context.Context, npis []string) (map[string]int64, error)
	InsertPatients(ctx context.Context, subscriberIDs []string) (map[string]int64, error)
}

// Resolution maps every requested key to its row id.
type Resolution struct {
	Providers        map[string]int64
	Patients         map[string]int64
	CreatedProviders int
	CreatedPatients  int
}

// Reconciler resolves provider and patient references for a batch, creating
// the missing ones exactly once.
type Reconciler struct{}

// Reconcile looks up existing providers and patients in bulk and inserts
// whatever is missing in first-appearance order. The store must be the
// caller's transaction; a unique violation from a concurrent writer surfaces
// as ErrConflict.
func (Reconciler) Reconcile(ctx context.Context, store EntityStore, npis, subscriberIDs []string) (*Resolution, error) {
	npis = dedupe(npis)
	subscriberIDs = dedupe(subscriberIDs)

	providers, err := store.FindProvidersByNPI(ctx, npis)
	if err != nil {
		return nil, fmt.Errorf("find providers: %w", err)
	}
	patients, err := store.FindPatientsBySubscriberID(ctx, subscriberIDs)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}

	res := &Resolution{Providers: providers, Patients: patients}
	if res.Providers == nil {
		res.Providers = make(map[string]int64, len(npis))
	}
	if res.Patients == nil {
		res.Patients = make(map[string]int64, len(subscriberIDs))
	}

	if missing := missingKeys(npis, res.Providers); len(missing) > 0 {
		created, err := store.InsertProviders(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("insert providers: %w", err)
		}
		for k, id := range created {
			res.Providers[k] = id
		}
		res.CreatedProviders = len(missing)
	}

	if missing := missingKeys(subscriberIDs, res.Patients); len(missing) > 0 {
		created, err := store.InsertPatients(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("insert patients: %w", err)
		}
		for k, id := range created {
			res.Patients[k] = id
		}
		res.CreatedPatients = len(missing)
	}

	if k := missingKeys(npis, res.Providers); len(k) > 0 {
		return nil, fmt.Errorf("%w: provider npi %s", ErrUnresolved, k[0])
	}
	if k := missingKeys(subscriberIDs, res.Patients); len(k) > 0 {
		return nil, fmt.Errorf("%w: subscriber %s", ErrUnresolved, k[0])
	}
	return res, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func missingKeys(keys []string, have map[string]int64) []string {
	var out []string
	for _, k := range keys {
		if _, ok := have[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
