package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bkp4113/claim-app/internal/platform/auth"
)

const (
	DefaultMaxAttempts  = 3
	DefaultTopProviders = 10
)

type Service struct {
	repo        Repository
	reconciler  Reconciler
	maxAttempts int
}

func NewService(repo Repository, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{repo: repo, maxAttempts: maxAttempts}
}

// Ingest validates a batch and stores it as one claim. Invalid input is
// rejected before any write. A conflict with a concurrent ingestion restarts
// the whole attempt in a fresh transaction.
func (s *Service) Ingest(ctx context.Context, raw []RawClaimLine) (*ClaimSummary, error) {
	log := zerolog.Ctx(ctx)

	lines, err := NormalizeBatch(raw)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subject", auth.SubjectFromContext(ctx)).
		Int("lines", len(lines)).
		Msg("ingesting claim")

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		summary, res, err := s.ingestOnce(ctx, lines)
		if err == nil {
			log.Info().
				Int64("claim_id", summary.ClaimID).
				Int("details", len(lines)).
				Int("providers_created", res.CreatedProviders).
				Int("patients_created", res.CreatedPatients).
				Int("attempt", attempt).
				Msg("claim ingested")
			return summary, nil
		}
		if !errors.Is(err, ErrConflict) {
			log.Error().Err(err).Int("attempt", attempt).Msg("claim ingestion failed")
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.maxAttempts).
			Msg("conflict creating providers or patients, retrying")
	}

	log.Error().Err(lastErr).Int("attempts", s.maxAttempts).Msg("claim ingestion retries exhausted")
	return nil, fmt.Errorf("ingest claim after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Service) ingestOnce(ctx context.Context, lines []ClaimLine) (*ClaimSummary, *Resolution, error) {
	var (
		summary ClaimSummary
		res     *Resolution
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		claim, err := uow.CreateClaim(ctx)
		if err != nil {
			return err
		}

		npis := make([]string, len(lines))
		subscribers := make([]string, len(lines))
		for i, l := range lines {
			npis[i] = l.ProviderNPI
			subscribers[i] = l.SubscriberID
		}
		res, err = s.reconciler.Reconcile(ctx, uow, npis, subscribers)
		if err != nil {
			return err
		}

		details := make([]ClaimDetail, len(lines))
		for i, l := range lines {
			providerID, ok := res.Providers[l.ProviderNPI]
			if !ok {
				return fmt.Errorf("%w: line %d provider npi %s", ErrUnresolved, l.LineNumber, l.ProviderNPI)
			}
			patientID, ok := res.Patients[l.SubscriberID]
			if !ok {
				return fmt.Errorf("%w: line %d subscriber %s", ErrUnresolved, l.LineNumber, l.SubscriberID)
			}
			details[i] = ClaimDetail{
				ClaimID:            claim.ID,
				LineNumber:         l.LineNumber,
				ProviderID:         providerID,
				PatientID:          patientID,
				ServiceDate:        l.ServiceDate,
				SubmittedProcedure: l.SubmittedProcedure,
				Quadrant:           l.Quadrant,
				Group:              l.Group,
				ProviderFees:       l.ProviderFees,
				AllowedFees:        l.AllowedFees,
				MemberCoInsurance:  l.MemberCoInsurance,
				MemberCoPay:        l.MemberCoPay,
				NetFees:            l.NetFees,
			}
		}
		if err := uow.InsertDetails(ctx, details); err != nil {
			return err
		}
		summary = claim.Summary()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &summary, res, nil
}

// ListClaims returns claim headers newest first plus the total count.
func (s *Service) ListClaims(ctx context.Context, limit, offset int) ([]ClaimSummary, int, error) {
	items, total, err := s.repo.ListClaims(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ClaimSummary, 0, len(items))
	for _, c := range items {
		out = append(out, c.Summary())
	}
	return out, total, nil
}

// GetClaim returns the detail lines of one claim in input order.
func (s *Service) GetClaim(ctx context.Context, claimID int64) ([]*ClaimDetailView, error) {
	ok, err := s.repo.ClaimExists(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	details, err := s.repo.GetClaimDetails(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		details = []*ClaimDetailView{}
	}
	return details, nil
}

// TopProviders ranks providers by the sum of their net fees.
func (s *Service) TopProviders(ctx context.Context, n int) ([]*ProviderNetFee, error) {
	if n <= 0 {
		n = DefaultTopProviders
	}
	items, err := s.repo.TopProviders(ctx, n)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*ProviderNetFee{}
	}
	return items, nil
}
