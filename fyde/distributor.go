package fyde

import (
	"math/big"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/yield"
)

var distributorAddr = common.MustNewAddressFromString("cx0000000000000000000000000000000000000004")

// RateDistributor funds each epoch by minting a fixed fraction of the
// base supply to the staking account. Rate is out of
// yield.PercentUnit, so 5000 pays 0.5% of supply per epoch. It needs
// the Vault role to mint.
type RateDistributor struct {
	log log.Logger

	base        *ledger.Base
	stakingAddr *common.Address
	rate        int64
}

func NewRateDistributor(
	logger log.Logger,
	base *ledger.Base,
	stakingAddr *common.Address,
	rate int64,
) (*RateDistributor, error) {
	if base == nil {
		return nil, errors.IllegalArgumentError.New("MissingCollaborator")
	}
	if rate < 0 || rate > yield.PercentUnit {
		return nil, errors.IllegalArgumentError.New("InvalidRate")
	}
	return &RateDistributor{
		log:         logger.WithFields(log.Fields{log.FieldKeyModule: "distributor"}),
		base:        base,
		stakingAddr: stakingAddr,
		rate:        rate,
	}, nil
}

func (d *RateDistributor) Address() *common.Address {
	return distributorAddr
}

func (d *RateDistributor) Rate() int64 {
	return d.rate
}

// NextReward is the amount the next Distribute call will mint.
func (d *RateDistributor) NextReward() *big.Int {
	reward := new(big.Int).Mul(d.base.TotalSupply(), big.NewInt(d.rate))
	return reward.Div(reward, big.NewInt(yield.PercentUnit))
}

func (d *RateDistributor) Distribute() error {
	reward := d.NextReward()
	if reward.Sign() == 0 {
		return nil
	}
	if err := d.base.Mint(distributorAddr, d.stakingAddr, reward); err != nil {
		return err
	}
	d.log.Debugf("Distribute(reward=%v)", reward)
	return nil
}
