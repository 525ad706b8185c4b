package fyde

import (
	"math/big"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/module"
	"github.com/fyde-finance/fyde/yield"
)

var exchangeAddr = common.MustNewAddressFromString("cx0000000000000000000000000000000000000005")

// FixedRateExchange settles swaps against the engine's own settlement
// ledger at a fixed price with a configurable spread. It backs local
// and test deployments; production deployments plug a real venue in
// through module.Exchange instead. Bind the ledgers after the engine
// is built, and grant the exchange the Vault role so it can issue
// settlement tokens.
type FixedRateExchange struct {
	base       *ledger.Base
	settlement *ledger.Base

	price  *big.Int
	spread int64
}

// NewFixedRateExchange quotes price settlement-wei per whole base
// token, charging spread out of yield.PercentUnit on every swap.
func NewFixedRateExchange(price *big.Int, spread int64) (*FixedRateExchange, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidPrice")
	}
	if spread < 0 || spread > yield.PercentUnit {
		return nil, errors.IllegalArgumentError.New("InvalidSpread")
	}
	return &FixedRateExchange{
		price:  new(big.Int).Set(price),
		spread: spread,
	}, nil
}

func (x *FixedRateExchange) Address() *common.Address {
	return exchangeAddr
}

func (x *FixedRateExchange) Bind(base, settlement *ledger.Base) {
	x.base = base
	x.settlement = settlement
}

func (x *FixedRateExchange) SetPrice(price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return errors.IllegalArgumentError.New("InvalidPrice")
	}
	x.price = new(big.Int).Set(price)
	return nil
}

func (x *FixedRateExchange) SwapExactTokensForTokens(
	amountIn, amountOutMin *big.Int, from, to *common.Address) (*big.Int, error) {
	if x.base == nil || x.settlement == nil {
		return nil, errors.InvalidStateError.New("ExchangeUnbound")
	}
	out := new(big.Int).Mul(amountIn, x.price)
	out.Div(out, ledger.Unit)
	out.Mul(out, big.NewInt(yield.PercentUnit-x.spread))
	out.Div(out, big.NewInt(yield.PercentUnit))
	if amountOutMin != nil && out.Cmp(amountOutMin) < 0 {
		return nil, errors.SlippageExceededError.Errorf(
			"QuoteBelowMinimum(out=%v,min=%v)", out, amountOutMin)
	}
	if err := x.base.Transfer(from, exchangeAddr, amountIn); err != nil {
		return nil, err
	}
	if err := x.settlement.Mint(exchangeAddr, to, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StaticOracle serves a settable price for local deployments and
// tests.
type StaticOracle struct {
	price *big.Int
	err   error
}

func NewStaticOracle(price *big.Int) *StaticOracle {
	return &StaticOracle{price: new(big.Int).Set(price)}
}

func (o *StaticOracle) SetPrice(price *big.Int) {
	o.price = new(big.Int).Set(price)
	o.err = nil
}

// Fail makes every subsequent quote return err, for testing upkeep
// rollback.
func (o *StaticOracle) Fail(err error) {
	o.err = err
}

func (o *StaticOracle) LatestPrice() (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	return new(big.Int).Set(o.price), nil
}

var (
	_ module.Exchange    = (*FixedRateExchange)(nil)
	_ module.PriceOracle = (*StaticOracle)(nil)
)
