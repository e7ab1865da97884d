package claims

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bkp4113/claim-app/internal/platform/validate"
)

var (
	rules = validate.New()

	// Amounts are stored as NUMERIC(14,2).
	currencyPattern = regexp.MustCompile(`^[+-]?\d{1,12}(\.\d{1,2})?$`)
	maxMoney        = decimal.RequireFromString("999999999999.99")

	serviceDateLayouts = []string{
		"1/2/06 15:04",
		"1/2/2006 15:04",
		"1/2/06",
		"1/2/2006",
		"2006-01-02",
		time.RFC3339,
	}
)

const (
	reasonCurrencyType   = `must be a string such as "$10.00"`
	reasonCurrencyFormat = `must be a dollar amount with at most 12 digits and two decimals`
	reasonNetFeeRange    = "is out of range for the provided fees"
	reasonString         = "must be a string"
	reasonServiceDate    = "must be a date such as 3/28/18 0:00"
)

// NormalizeCurrency parses a dollar amount like "$100.00 " into a decimal.
// Errors carry the field "amount"; batch validation replaces it with the
// column name.
func NormalizeCurrency(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if !currencyPattern.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: reasonCurrencyFormat}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: reasonCurrencyFormat}
	}
	return d, nil
}

// ValidateProcedureCode accepts dental procedure codes, which start with D.
func ValidateProcedureCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if err := rules.Var(code, "required,startswith=D,max=32"); err != nil {
		return "", &ValidationError{Field: ColSubmittedProcedure, Reason: ruleReason(err)}
	}
	return code, nil
}

// ValidateProviderIdentifier accepts a 10 digit NPI.
func ValidateProviderIdentifier(npi string) (string, error) {
	npi = strings.TrimSpace(npi)
	if err := rules.Var(npi, "required,len=10,number"); err != nil {
		return "", &ValidationError{Field: ColProviderNPI, Reason: ruleReason(err)}
	}
	return npi, nil
}

// ParseServiceDate reads the dates found in claim exports ("3/28/18 0:00")
// as well as ISO dates.
func ParseServiceDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range serviceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: ColServiceDate, Reason: reasonServiceDate}
}

func ruleReason(err error) string {
	if fes := validate.Fields(err); len(fes) > 0 {
		return fes[0].Reason()
	}
	return err.Error()
}

// NormalizeBatch validates every line and returns them normalized with net
// fees computed. All problems are reported together as ValidationErrors.
func NormalizeBatch(raw []RawClaimLine) ([]ClaimLine, error) {
	if len(raw) == 0 {
		return nil, ValidationErrors{{Field: "claims", Reason: "must contain at least one line"}}
	}

	var errs ValidationErrors
	lines := make([]ClaimLine, 0, len(raw))
	for i := range raw {
		line, lineErrs := normalizeLine(i+1, &raw[i])
		if len(lineErrs) > 0 {
			errs = append(errs, lineErrs...)
			continue
		}
		lines = append(lines, line)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return lines, nil
}

type lineChecker struct {
	line int
	errs ValidationErrors
}

func (lc *lineChecker) fail(field, reason string) {
	lc.errs = append(lc.errs, &ValidationError{Line: lc.line, Field: field, Reason: reason})
}

func (lc *lineChecker) fromErr(field string, err error) {
	reason := err.Error()
	var ve *ValidationError
	if errors.As(err, &ve) {
		reason = ve.Reason
	}
	lc.fail(field, reason)
}

// text requires a JSON string.
func (lc *lineChecker) text(field string, v RawValue) (string, bool) {
	if !v.Present() {
		lc.fail(field, "is required")
		return "", false
	}
	if !v.IsString() {
		lc.fail(field, reasonString)
		return "", false
	}
	return v.Text, true
}

// identifier accepts a JSON string or number.
func (lc *lineChecker) identifier(field string, v RawValue) (string, bool) {
	if !v.Present() {
		lc.fail(field, "is required")
		return "", false
	}
	if !v.IsString() && !v.IsNumber() {
		lc.fail(field, reasonString)
		return "", false
	}
	s := strings.TrimSpace(v.Text)
	if s == "" {
		lc.fail(field, "is required")
		return "", false
	}
	return s, true
}

func (lc *lineChecker) currency(field string, v RawValue) decimal.Decimal {
	if !v.Present() {
		lc.fail(field, "is required")
		return decimal.Zero
	}
	if !v.IsString() {
		lc.fail(field, reasonCurrencyType)
		return decimal.Zero
	}
	d, err := NormalizeCurrency(v.Text)
	if err != nil {
		lc.fromErr(field, err)
	}
	return d
}

func normalizeLine(n int, raw *RawClaimLine) (ClaimLine, ValidationErrors) {
	lc := &lineChecker{line: n}
	line := ClaimLine{LineNumber: n}

	if s, ok := lc.text(ColServiceDate, raw.ServiceDate); ok {
		t, err := ParseServiceDate(s)
		if err != nil {
			lc.fromErr(ColServiceDate, err)
		}
		line.ServiceDate = t
	}

	if s, ok := lc.text(ColSubmittedProcedure, raw.SubmittedProcedure); ok {
		code, err := ValidateProcedureCode(s)
		if err != nil {
			lc.fromErr(ColSubmittedProcedure, err)
		}
		line.SubmittedProcedure = code
	}

	if raw.Quadrant.Present() {
		if !raw.Quadrant.IsString() {
			lc.fail(ColQuadrant, reasonString)
		} else if q := strings.TrimSpace(raw.Quadrant.Text); q != "" {
			if err := rules.Var(q, "max=32"); err != nil {
				lc.fail(ColQuadrant, ruleReason(err))
			}
			line.Quadrant = &q
		}
	}

	if s, ok := lc.text(ColPlanGroup, raw.PlanGroup); ok {
		s = strings.TrimSpace(s)
		if err := rules.Var(s, "required,max=64"); err != nil {
			lc.fail(ColPlanGroup, ruleReason(err))
		}
		line.Group = s
	}

	if s, ok := lc.identifier(ColSubscriberID, raw.SubscriberID); ok {
		if err := rules.Var(s, "max=255"); err != nil {
			lc.fail(ColSubscriberID, ruleReason(err))
		}
		line.SubscriberID = s
	}

	if s, ok := lc.identifier(ColProviderNPI, raw.ProviderNPI); ok {
		npi, err := ValidateProviderIdentifier(s)
		if err != nil {
			lc.fromErr(ColProviderNPI, err)
		}
		line.ProviderNPI = npi
	}

	line.ProviderFees = lc.currency(ColProviderFees, raw.ProviderFees)
	line.AllowedFees = lc.currency(ColAllowedFees, raw.AllowedFees)
	line.MemberCoInsurance = lc.currency(ColMemberCoInsurance, raw.MemberCoInsurance)
	line.MemberCoPay = lc.currency(ColMemberCoPay, raw.MemberCoPay)

	if len(lc.errs) > 0 {
		return ClaimLine{}, lc.errs
	}
	line.NetFees = ComputeNetFee(line.ProviderFees, line.AllowedFees, line.MemberCoInsurance, line.MemberCoPay)
	if line.NetFees.Abs().GreaterThan(maxMoney) {
		lc.fail(ColNetFees, reasonNetFeeRange)
		return ClaimLine{}, lc.errs
	}
	return line, nil
}
