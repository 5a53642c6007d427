package entities

import "github.com/shopspring/decimal"

// MoneyPrecision is the number of decimal places kept for money values.
const MoneyPrecision = 8

// ComputeCommission returns the platform commission for amount at feeRate and
// the amount the buyer pays in total. Both are rounded to MoneyPrecision.
func ComputeCommission(amount, feeRate decimal.Decimal) (commission, total decimal.Decimal) {
	commission = amount.Mul(feeRate).Round(MoneyPrecision)
	total = amount.Add(commission).Round(MoneyPrecision)
	return commission, total
}
