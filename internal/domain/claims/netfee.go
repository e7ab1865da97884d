package claims

import "github.com/shopspring/decimal"

// ComputeNetFee returns provider fees + coinsurance + copay - allowed fees.
func ComputeNetFee(providerFees, allowedFees, memberCoInsurance, memberCoPay decimal.Decimal) decimal.Decimal {
	return providerFees.Add(memberCoInsurance).Add(memberCoPay).Sub(allowedFees)
}
