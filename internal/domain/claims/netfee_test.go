package claims

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeNetFee(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		provider, allowed, coins, copay, want string
	}{
		{"130.00", "65.00", "16.25", "0.00", "81.25"},
		{"100.00", "100.00", "0.00", "0.00", "0"},
		{"178.00", "178.00", "35.60", "0.00", "35.60"},
		{"50.00", "80.00", "0.00", "0.00", "-30.00"},
		{"0.10", "0.00", "0.20", "0.00", "0.30"},
	}
	for _, tt := range tests {
		got := ComputeNetFee(d(tt.provider), d(tt.allowed), d(tt.coins), d(tt.copay))
		if !got.Equal(d(tt.want)) {
			t.Errorf("ComputeNetFee(%s, %s, %s, %s) = %s, want %s",
				tt.provider, tt.allowed, tt.coins, tt.copay, got, tt.want)
		}
	}
}
