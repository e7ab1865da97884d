package claims

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bkp4113/claim-app/internal/platform/db"
)

const (
	providerNPIKey         = "provider_npi_key"
	patientSubscriberIDKey = "patient_subscriber_id_key"
)

var detailCopyColumns = []string{
	"claim_id", "line_number", "provider_id", "subscriber_id", "service_date",
	"submitted_procedure", "quadrant", "plan_group",
	"provider_fees", "allowed_fees", "member_co_insurance", "member_co_pay", "net_fees",
}

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &uowPG{tx: tx})
	})
}

// ListClaims reads the count and the page from one snapshot.
func (r *claimRepoPG) ListClaims(ctx context.Context, limit, offset int) ([]*Claim, int, error) {
	var (
		items []*Claim
		total int
	)
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := db.WithTx(ctx, r.pool, opts, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM claim`).Scan(&total); err != nil {
			return fmt.Errorf("count claims: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT claim_id, created, updated FROM claim
			ORDER BY created DESC, claim_id DESC
			LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return fmt.Errorf("list claims: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c Claim
			if err := rows.Scan(&c.ID, &c.Created, &c.Updated); err != nil {
				return fmt.Errorf("scan claim: %w", err)
			}
			items = append(items, &c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *claimRepoPG) ClaimExists(ctx context.Context, claimID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claim WHERE claim_id = $1)`, claimID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check claim %d: %w", claimID, err)
	}
	return exists, nil
}

func (r *claimRepoPG) GetClaimDetails(ctx context.Context, claimID int64) ([]*ClaimDetailView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.claim_id, d.service_date, d.submitted_procedure, d.quadrant, d.plan_group,
			pt.subscriber_id, p.npi,
			d.provider_fees, d.allowed_fees, d.member_co_insurance, d.member_co_pay, d.net_fees,
			d.created, d.updated
		FROM claim_detail d
		JOIN provider p ON p.provider_id = d.provider_id
		JOIN patient pt ON pt.patient_id = d.subscriber_id
		WHERE d.claim_id = $1
		ORDER BY d.line_number`, claimID)
	if err != nil {
		return nil, fmt.Errorf("get claim %d details: %w", claimID, err)
	}
	defer rows.Close()

	var items []*ClaimDetailView
	for rows.Next() {
		var (
			v                                    ClaimDetailView
			provider, allowed, coins, copay, net pgtype.Numeric
		)
		if err := rows.Scan(&v.ClaimID, &v.ServiceDate, &v.SubmittedProcedure, &v.Quadrant, &v.Group,
			&v.Subscriber, &v.NPI,
			&provider, &allowed, &coins, &copay, &net,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan claim detail: %w", err)
		}
		v.ProviderFees = NewMoney(fromNumeric(provider))
		v.AllowedFees = NewMoney(fromNumeric(allowed))
		v.MemberCoInsurance = NewMoney(fromNumeric(coins))
		v.MemberCoPay = NewMoney(fromNumeric(copay))
		v.NetFees = NewMoney(fromNumeric(net))
		items = append(items, &v)
	}
	return items, rows.Err()
}

func (r *claimRepoPG) TopProviders(ctx context.Context, n int) ([]*ProviderNetFee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.npi, SUM(d.net_fees) AS total
		FROM claim_detail d
		JOIN provider p ON p.provider_id = d.provider_id
		GROUP BY p.provider_id, p.npi
		ORDER BY total DESC, p.provider_id ASC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("top providers: %w", err)
	}
	defer rows.Close()

	var items []*ProviderNetFee
	for rows.Next() {
		var (
			pf    ProviderNetFee
			total pgtype.Numeric
		)
		if err := rows.Scan(&pf.ProviderNPI, &total); err != nil {
			return nil, fmt.Errorf("scan provider total: %w", err)
		}
		pf.TotalNetFees = NewMoney(fromNumeric(total))
		items = append(items, &pf)
	}
	return items, rows.Err()
}

// uowPG runs every write against one pgx.Tx.
type uowPG struct{ tx pgx.Tx }

func (u *uowPG) CreateClaim(ctx context.Context) (*Claim, error) {
	var c Claim
	err := u.tx.QueryRow(ctx, `INSERT INTO claim DEFAULT VALUES RETURNING claim_id, created, updated`).
		Scan(&c.ID, &c.Created, &c.Updated)
	if err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}
	return &c, nil
}

func (u *uowPG) InsertDetails(ctx context.Context, details []ClaimDetail) error {
	rows := make([][]interface{}, len(details))
	for i, d := range details {
		rows[i] = []interface{}{
			d.ClaimID, d.LineNumber, d.ProviderID, d.PatientID, d.ServiceDate,
			d.SubmittedProcedure, d.Quadrant, d.Group,
			toNumeric(d.ProviderFees), toNumeric(d.AllowedFees), toNumeric(d.MemberCoInsurance),
			toNumeric(d.MemberCoPay), toNumeric(d.NetFees),
		}
	}
	n, err := u.tx.CopyFrom(ctx, pgx.Identifier{"claim_detail"}, detailCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy claim details: %w", err)
	}
	if int(n) != len(details) {
		return fmt.Errorf("copy claim details: wrote %d of %d rows", n, len(details))
	}
	return nil
}

func (u *uowPG) FindProvidersByNPI(ctx context.Context, npis []string) (map[string]int64, error) {
	return u.lookup(ctx, `SELECT npi, provider_id FROM provider WHERE npi = ANY($1)`, npis)
}

func (u *uowPG) FindPatientsBySubscriberID(ctx context.Context, subscriberIDs []string) (map[string]int64, error) {
	return u.lookup(ctx, `SELECT subscriber_id, patient_id FROM patient WHERE subscriber_id = ANY($1)`, subscriberIDs)
}

func (u *uowPG) InsertProviders(ctx context.Context, npis []string) (map[string]int64, error) {
	ids, err := u.lookup(ctx, `
		INSERT INTO provider (npi)
		SELECT npi FROM unnest($1::text[]) WITH ORDINALITY AS t(npi, ord) ORDER BY ord
		RETURNING npi, provider_id`, npis)
	if db.IsUniqueViolation(err, providerNPIKey) {
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return ids, err
}

func (u *uowPG) InsertPatients(ctx context.Context, subscriberIDs []string) (map[string]int64, error) {
	ids, err := u.lookup(ctx, `
		INSERT INTO patient (subscriber_id)
		SELECT sid FROM unnest($1::text[]) WITH ORDINALITY AS t(sid, ord) ORDER BY ord
		RETURNING subscriber_id, patient_id`, subscriberIDs)
	if db.IsUniqueViolation(err, patientSubscriberIDKey) {
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return ids, err
}

// lookup runs a (key, id) query and collects it into a map.
func (u *uowPG) lookup(ctx context.Context, sql string, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := u.tx.Query(ctx, sql, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			id  int64
		)
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		out[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
