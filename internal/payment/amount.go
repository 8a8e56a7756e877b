package payment

import "github.com/shopspring/decimal"

// minorUnitExp is the exponent between minor and major units. Every currency
// is treated as having two decimal places; JPY, KWD and friends are not
// handled.
const minorUnitExp = -2

// MinorToMajor converts an integer minor-unit amount (cents) into a decimal
// major-unit amount. The conversion is exact.
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, minorUnitExp)
}

// MajorToMinor is the inverse of MinorToMajor. Fractions of a minor unit
// are rounded half away from zero.
func MajorToMinor(major decimal.Decimal) int64 {
	return major.Shift(-minorUnitExp).Round(0).IntPart()
}
