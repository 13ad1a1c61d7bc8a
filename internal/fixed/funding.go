package fixed

import "math/big"

// CompoundFundingPrice applies one funding charge to a position's
// funding-tracked open price. Long positions drift up with a positive rate,
// short positions drift down:
//
//	long:  price + price*rate/F
//	short: price - price*rate/F
func CompoundFundingPrice(price, rate *big.Int, long bool) *big.Int {
	adj := MulDescale(price, rate)
	if long {
		return Add(price, adj)
	}
	return Sub(price, adj)
}

// FundingFee computes the fee paid for one funding charge on the still-open
// part of a position: price * rate * openQuantity / F / F. The sign follows
// the rate; a negative rate means the position received funding.
func FundingFee(price, rate, openQuantity *big.Int) *big.Int {
	p := new(big.Int).Mul(price, rate)
	p.Mul(p, openQuantity)
	p.Quo(p, factor)
	return p.Quo(p, factor)
}

// MarginalLiquidationPrice blends the settlement-reported overall average
// close price back out to isolate the price of the just-liquidated remainder:
//
//	(reportedAvg*quantity - oldAvg*closedAmount) / remaining
//
// remaining must be non-zero; the caller guards this.
func MarginalLiquidationPrice(reportedAvg, quantity, oldAvg, closedAmount, remaining *big.Int) (*big.Int, error) {
	num := new(big.Int).Mul(reportedAvg, quantity)
	num.Sub(num, new(big.Int).Mul(oldAvg, closedAmount))
	return Div(num, remaining)
}
