package claims

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Claim maps to the claim table. It is only a header; the service lines live
// in claim_detail.
type Claim struct {
	ID      int64     `db:"claim_id"`
	Created time.Time `db:"created"`
	Updated time.Time `db:"updated"`
}

// Summary converts the header into its API representation.
func (c *Claim) Summary() ClaimSummary {
	return ClaimSummary{ClaimID: c.ID, CreatedAt: c.Created, UpdatedAt: c.Updated}
}

// ClaimSummary is returned by ingestion and listing.
type ClaimSummary struct {
	ClaimID   int64     `json:"claimId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClaimsPage is the body of GET /v1/claims.
type ClaimsPage struct {
	Claims     []ClaimSummary `json:"claims"`
	TotalCount int            `json:"totalCount"`
}

// ClaimLine is a validated, normalized input line.
type ClaimLine struct {
	LineNumber         int
	ServiceDate        time.Time
	SubmittedProcedure string
	Quadrant           *string
	Group              string
	SubscriberID       string
	ProviderNPI        string
	ProviderFees       decimal.Decimal
	AllowedFees        decimal.Decimal
	MemberCoInsurance  decimal.Decimal
	MemberCoPay        decimal.Decimal
	NetFees            decimal.Decimal
}

// ClaimDetail maps to the claim_detail table.
type ClaimDetail struct {
	ClaimID            int64           `db:"claim_id"`
	LineNumber         int             `db:"line_number"`
	ProviderID         int64           `db:"provider_id"`
	PatientID          int64           `db:"subscriber_id"`
	ServiceDate        time.Time       `db:"service_date"`
	SubmittedProcedure string          `db:"submitted_procedure"`
	Quadrant           *string         `db:"quadrant"`
	Group              string          `db:"plan_group"`
	ProviderFees       decimal.Decimal `db:"provider_fees"`
	AllowedFees        decimal.Decimal `db:"allowed_fees"`
	MemberCoInsurance  decimal.Decimal `db:"member_co_insurance"`
	MemberCoPay        decimal.Decimal `db:"member_co_pay"`
	NetFees            decimal.Decimal `db:"net_fees"`
}

// Money is a currency amount rendered as a JSON number with two decimals.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money { return Money{Decimal: d} }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// ClaimDetailView is one line of GET /v1/claims/:claimId.
type ClaimDetailView struct {
	ClaimID            int64     `json:"claimId"`
	ServiceDate        time.Time `json:"service_date"`
	SubmittedProcedure string    `json:"submitted_procedure"`
	Quadrant           *string   `json:"quadrant"`
	Group              string    `json:"group"`
	Subscriber         string    `json:"subscriber"`
	NPI                string    `json:"npi"`
	ProviderFees       Money     `json:"provider_fees"`
	AllowedFees        Money     `json:"allowed_fees"`
	MemberCoInsurance  Money     `json:"member_co_insurance"`
	MemberCoPay        Money     `json:"member_co_pay"`
	NetFees            Money     `json:"net_fees"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProviderNetFee is one row of the top-providers aggregate.
type ProviderNetFee struct {
	ProviderNPI  string `json:"providerNpi"`
	TotalNetFees Money  `json:"totalNetFees"`
}

type jsonKind int

const (
	kindAbsent jsonKind = iota
	kindString
	kindNumber
	kindOther
)

// RawValue holds a scalar from the request body along with its JSON kind.
// Numbers keep their literal text so identifiers like 3730189502 survive
// without float rounding.
type RawValue struct {
	Text string
	kind jsonKind
}

// Str builds a RawValue from a string, as read from CSV or XLSX.
func Str(s string) RawValue { return RawValue{Text: s, kind: kindString} }

func (v *RawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = RawValue{}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = RawValue{Text: s, kind: kindString}
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = RawValue{Text: n.String(), kind: kindNumber}
	default:
		*v = RawValue{Text: string(b), kind: kindOther}
	}
	return nil
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindAbsent:
		return []byte("null"), nil
	case kindNumber, kindOther:
		return []byte(v.Text), nil
	default:
		return json.Marshal(v.Text)
	}
}

// Present reports whether the field was sent with a non-null value.
func (v RawValue) Present() bool { return v.kind != kindAbsent }

// IsString reports whether the value was a JSON string.
func (v RawValue) IsString() bool { return v.kind == kindString }

// IsNumber reports whether the value was a JSON number.
func (v RawValue) IsNumber() bool { return v.kind == kindNumber }

// RawClaimLine is one element of the POST /v1/claims body. Keys match the
// payer's claim export headers.
type RawClaimLine struct {
	ServiceDate        RawValue `json:"service date"`
	SubmittedProcedure RawValue `json:"submitted procedure"`
	Quadrant           RawValue `json:"quadrant"`
	PlanGroup          RawValue `json:"Plan/Group #"`
	SubscriberID       RawValue `json:"Subscriber#"`
	ProviderNPI        RawValue `json:"Provider NPI"`
	ProviderFees       RawValue `json:"provider fees"`
	AllowedFees        RawValue `json:"Allowed fees"`
	MemberCoInsurance  RawValue `json:"member coinsurance"`
	MemberCoPay        RawValue `json:"member copay"`
}

// Column names shared by the JSON body and the CSV/XLSX header row.
const (
	ColServiceDate        = "service date"
	ColSubmittedProcedure = "submitted procedure"
	ColQuadrant           = "quadrant"
	ColPlanGroup          = "Plan/Group #"
	ColSubscriberID       = "Subscriber#"
	ColProviderNPI        = "Provider NPI"
	ColProviderFees       = "provider fees"
	ColAllowedFees        = "Allowed fees"
	ColMemberCoInsurance  = "member coinsurance"
	ColMemberCoPay        = "member copay"
)

// ColNetFees names the computed net fee in validation errors.
const ColNetFees = "net_fees"
