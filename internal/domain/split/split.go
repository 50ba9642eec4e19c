package split

import (
	"github.com/shopspring/decimal"
)

var (
	retailerRate = decimal.RequireFromString("0.60")
	platformRate = decimal.RequireFromString("0.28")
	partnerRate  = decimal.RequireFromString("0.12")
)

// Shares is a total divided between retailer, platform and partner.
// Retailer+Platform+Partner always equals Total.
type Shares struct {
	Total      int64 `json:"total"`
	Retailer   int64 `json:"retailer"`
	Platform   int64 `json:"platform"`
	Partner    int64 `json:"partner"`
	Adjustment int64 `json:"adjustment"`
}

// Compute splits total 60/28/12. Each share is rounded half away from zero
// and the retailer absorbs whatever rounding leaves over.
func Compute(total int64) Shares {
	t := decimal.NewFromInt(total)
	retailer := t.Mul(retailerRate).Round(0).IntPart()
	platform := t.Mul(platformRate).Round(0).IntPart()
	partner := t.Mul(partnerRate).Round(0).IntPart()

	adjustment := total - (retailer + platform + partner)
	return Shares{
		Total:      total,
		Retailer:   retailer + adjustment,
		Platform:   platform,
		Partner:    partner,
		Adjustment: adjustment,
	}
}
