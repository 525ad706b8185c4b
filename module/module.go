package module

import (
	"math/big"

	"github.com/fyde-finance/fyde/common"
)

// Distributor funds the pre-computed epoch distribution. It is invoked
// by the staking engine at every epoch boundary and must credit the
// staking account on the base ledger before returning. An error aborts
// the whole rebase.
type Distributor interface {
	Distribute() error
}

// Exchange is an external swap capability. It pulls amountIn of the
// input asset from the caller account and returns the amount of the
// output asset credited to to. The call either settles in full or
// fails without transfer.
type Exchange interface {
	SwapExactTokensForTokens(
		amountIn *big.Int,
		amountOutMin *big.Int,
		from *common.Address,
		to *common.Address,
	) (*big.Int, error)
}

// PriceOracle quotes the settlement asset value of one unit of the
// base token, scaled by the base token's unit (1e9). Untrusted; the
// caller bounds the quote with its own slippage limit.
type PriceOracle interface {
	LatestPrice() (*big.Int, error)
}

// Token is the minimal surface the yield streamer needs from the
// settlement asset ledger.
type Token interface {
	BalanceOf(owner *common.Address) *big.Int
	Transfer(from, to *common.Address, value *big.Int) error
}
