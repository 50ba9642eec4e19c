package momo

import "strings"

const (
	CountryCode = "250"

	nationalLength = 9
)

// carrierPrefixes maps the first two national digits to an operator.
// Prefixes not listed here resolve to ProviderUnknown.
var carrierPrefixes = map[string]Provider{
	"78": ProviderMTN,
	"79": ProviderMTN,
	"72": ProviderAirtel,
	"73": ProviderAirtel,
}

// NormalizeMSISDN strips non-digits and rewrites a leading 0 or a missing
// country code to the international 250 form.
func NormalizeMSISDN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, CountryCode) && len(digits) == len(CountryCode)+nationalLength:
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) == nationalLength+1:
		return CountryCode + digits[1:]
	case len(digits) == nationalLength:
		return CountryCode + digits
	default:
		return digits
	}
}

// LocalMSISDN returns the national number without the country code
func LocalMSISDN(raw string) string {
	n := NormalizeMSISDN(raw)
	if strings.HasPrefix(n, CountryCode) && len(n) == len(CountryCode)+nationalLength {
		return n[len(CountryCode):]
	}
	return n
}

// IsValidMSISDN reports whether raw normalizes to a full international number
func IsValidMSISDN(raw string) bool {
	n := NormalizeMSISDN(raw)
	return len(n) == len(CountryCode)+nationalLength && strings.HasPrefix(n, CountryCode)
}

// DetectCarrier maps an MSISDN to its operator by national prefix
func DetectCarrier(msisdn string) Provider {
	if !IsValidMSISDN(msisdn) {
		return ProviderUnknown
	}
	local := LocalMSISDN(msisdn)
	if p, ok := carrierPrefixes[local[:2]]; ok {
		return p
	}
	return ProviderUnknown
}
