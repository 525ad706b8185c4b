package server

import (
	"math/big"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/server/metric"
)

func parseAddress(s string) (*common.Address, error) {
	addr, err := common.NewAddressFromString(s)
	if err != nil {
		return nil, errors.InvalidAddressError.Wrapf(err, "InvalidAddress(addr=%s)", s)
	}
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	v := new(big.Int)
	if err := common.ParseBigInt(v, s); err != nil {
		return nil, errors.IllegalArgumentError.Wrapf(err, "InvalidAmount(amount=%s)", s)
	}
	return v, nil
}

func timeOf(v int64) int64 {
	if v > 0 {
		return v
	}
	return time.Now().Unix()
}

func record(op string, start time.Time, err error) {
	metric.RecordOperation(op, time.Since(start), err)
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func amountJSON(c echo.Context, v *big.Int) error {
	return c.JSON(http.StatusOK, &amountResponse{Amount: common.FormatBigInt(v)})
}

func (srv *Manager) handleIndex(c echo.Context) error {
	var index *big.Int
	srv.engine.View(func() {
		index = srv.engine.Staked().Index()
	})
	return amountJSON(c, index)
}

type epochResponse struct {
	Length     int64  `json:"length"`
	Number     int64  `json:"number"`
	End        int64  `json:"end"`
	Distribute string `json:"distribute"`
}

func (srv *Manager) handleEpoch(c echo.Context) error {
	var resp epochResponse
	srv.engine.View(func() {
		e := srv.engine.Staking().Epoch()
		resp = epochResponse{
			Length:     e.Length,
			Number:     e.Number,
			End:        e.End,
			Distribute: common.FormatBigInt(e.Distribute),
		}
	})
	return c.JSON(http.StatusOK, &resp)
}

type supplyResponse struct {
	Base        string `json:"base"`
	Staked      string `json:"staked"`
	Circulating string `json:"circulating"`
	Wrapped     string `json:"wrapped"`
	InWarmup    string `json:"in_warmup"`
}

func (srv *Manager) handleSupply(c echo.Context) error {
	var resp supplyResponse
	srv.engine.View(func() {
		resp = supplyResponse{
			Base:        common.FormatBigInt(srv.engine.Base().TotalSupply()),
			Staked:      common.FormatBigInt(srv.engine.Staked().TotalSupply()),
			Circulating: common.FormatBigInt(srv.engine.Staked().CirculatingSupply()),
			Wrapped:     common.FormatBigInt(srv.engine.Wrapped().TotalSupply()),
			InWarmup:    common.FormatBigInt(srv.engine.Staking().SupplyInWarmup()),
		}
	})
	return c.JSON(http.StatusOK, &resp)
}

type balanceResponse struct {
	Address    string `json:"address"`
	Base       string `json:"base"`
	Staked     string `json:"staked"`
	Wrapped    string `json:"wrapped"`
	Settlement string `json:"settlement"`
}

func (srv *Manager) handleBalance(c echo.Context) error {
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		return err
	}
	var resp balanceResponse
	srv.engine.View(func() {
		resp = balanceResponse{
			Address:    addr.String(),
			Base:       common.FormatBigInt(srv.engine.Base().BalanceOf(addr)),
			Staked:     common.FormatBigInt(srv.engine.Staked().BalanceOf(addr)),
			Wrapped:    common.FormatBigInt(srv.engine.Wrapped().BalanceOf(addr)),
			Settlement: common.FormatBigInt(srv.engine.Settlement().BalanceOf(addr)),
		}
	})
	return c.JSON(http.StatusOK, &resp)
}

type warmupResponse struct {
	Address string `json:"address"`
	Deposit string `json:"deposit"`
	Value   string `json:"value"`
	Expiry  int64  `json:"expiry"`
	Lock    bool   `json:"lock"`
}

func (srv *Manager) handleWarmup(c echo.Context) error {
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		return err
	}
	var resp warmupResponse
	srv.engine.View(func() {
		info := srv.engine.Staking().WarmupInfoOf(addr)
		resp = warmupResponse{
			Address: addr.String(),
			Deposit: common.FormatBigInt(info.Deposit),
			Value:   common.FormatBigInt(srv.engine.Staked().BalanceForGons(info.Gons)),
			Expiry:  info.Expiry,
			Lock:    info.Lock,
		}
	})
	return c.JSON(http.StatusOK, &resp)
}

type depositResponse struct {
	ID        int64  `json:"id"`
	Depositor string `json:"depositor"`
	Recipient string `json:"recipient"`
	Principal string `json:"principal"`
	Agnostic  string `json:"agnostic"`
	Yield     string `json:"yield"`
}

func (srv *Manager) handleDeposits(c echo.Context) error {
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		return err
	}
	var resp []depositResponse
	srv.engine.View(func() {
		d := srv.engine.Director()
		for _, info := range d.AllDeposits(addr) {
			resp = append(resp, depositResponse{
				ID:        info.ID,
				Depositor: info.Depositor.String(),
				Recipient: info.Recipient.String(),
				Principal: common.FormatBigInt(info.Principal),
				Agnostic:  common.FormatBigInt(info.Agnostic),
				Yield:     common.FormatBigInt(d.GetOutstandingYield(info.Principal, info.Agnostic)),
			})
		}
	})
	if resp == nil {
		resp = []depositResponse{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (srv *Manager) handleYield(c echo.Context) error {
	id, err := common.ParseInt(c.Param("id"), 64)
	if err != nil {
		return errors.IllegalArgumentError.Wrap(err, "InvalidID")
	}
	var (
		resp depositResponse
		verr error
	)
	srv.engine.View(func() {
		d := srv.engine.Director()
		info, err := d.Get(id)
		if err != nil {
			verr = err
			return
		}
		resp = depositResponse{
			ID:        info.ID,
			Depositor: info.Depositor.String(),
			Recipient: info.Recipient.String(),
			Principal: common.FormatBigInt(info.Principal),
			Agnostic:  common.FormatBigInt(info.Agnostic),
			Yield:     common.FormatBigInt(d.GetOutstandingYield(info.Principal, info.Agnostic)),
		}
	})
	if verr != nil {
		return verr
	}
	return c.JSON(http.StatusOK, &resp)
}

type stakeRequest struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Rebasing bool   `json:"rebasing"`
	Claim    bool   `json:"claim"`
}

func (srv *Manager) handleStake(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("stake", start, err) }()
	var req stakeRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	out, err := srv.engine.Stake(from, to, amount, req.Rebasing, req.Claim)
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type claimRequest struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Rebasing bool   `json:"rebasing"`
}

func (srv *Manager) handleClaim(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("claim", start, err) }()
	var req claimRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return err
	}
	out, err := srv.engine.Claim(from, to, req.Rebasing)
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type forfeitRequest struct {
	From string `json:"from" validate:"required"`
}

func (srv *Manager) handleForfeit(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("forfeit", start, err) }()
	var req forfeitRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	out, err := srv.engine.Forfeit(from)
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type unstakeRequest struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Trigger  bool   `json:"trigger"`
	Rebasing bool   `json:"rebasing"`
	Time     int64  `json:"time"`
}

func (srv *Manager) handleUnstake(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("unstake", start, err) }()
	var req unstakeRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	out, err := srv.engine.Unstake(from, to, amount, req.Trigger, req.Rebasing, timeOf(req.Time))
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type convertRequest struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

func (srv *Manager) convert(c echo.Context, fn func(from, to *common.Address, amount *big.Int) (*big.Int, error)) error {
	var req convertRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	out, err := fn(from, to, amount)
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

func (srv *Manager) handleWrap(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("wrap", start, err) }()
	return srv.convert(c, srv.engine.Wrap)
}

func (srv *Manager) handleUnwrap(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("unwrap", start, err) }()
	return srv.convert(c, srv.engine.Unwrap)
}

type rebaseRequest struct {
	Time int64 `json:"time"`
}

func (srv *Manager) handleRebase(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("rebase", start, err) }()
	var req rebaseRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = srv.engine.Rebase(timeOf(req.Time)); err != nil {
		return err
	}
	var epoch int64
	srv.engine.View(func() {
		epoch = srv.engine.Staking().Epoch().Number
	})
	return c.JSON(http.StatusOK, map[string]int64{"epoch": epoch})
}

type donateRequest struct {
	From      string `json:"from" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Staked    bool   `json:"staked"`
}

func (srv *Manager) handleDonate(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("donate", start, err) }()
	var req donateRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	var id int64
	err = srv.engine.Do(func() error {
		var err error
		if req.Staked {
			id, err = srv.engine.Director().DepositStaked(from, recipient, amount)
		} else {
			id, err = srv.engine.Director().Deposit(from, recipient, amount)
		}
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"id": id})
}

type withdrawRequest struct {
	From   string `json:"from" validate:"required"`
	ID     int64  `json:"id" validate:"gte=0"`
	Amount string `json:"amount"`
	All    bool   `json:"all"`
}

func (srv *Manager) handleWithdraw(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("withdraw", start, err) }()
	var req withdrawRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	out := new(big.Int)
	err = srv.engine.Do(func() error {
		if req.All {
			var err error
			out, err = srv.engine.Director().WithdrawAllPrincipal(from, req.ID)
			return err
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return err
		}
		out.Set(amount)
		return srv.engine.Director().WithdrawPrincipal(from, req.ID, amount)
	})
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type redeemRequest struct {
	From      string `json:"from" validate:"required"`
	Recipient string `json:"recipient"`
	ID        int64  `json:"id" validate:"gte=0"`
	All       bool   `json:"all"`
	Staked    bool   `json:"staked"`
}

func (srv *Manager) handleRedeem(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("redeem", start, err) }()
	var req redeemRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = c.Validate(&req); err != nil {
		return err
	}
	from, err := parseAddress(req.From)
	if err != nil {
		return err
	}
	out := new(big.Int)
	err = srv.engine.Do(func() error {
		d := srv.engine.Director()
		var (
			v   *big.Int
			err error
		)
		switch {
		case req.All && req.Recipient != "":
			var recipient *common.Address
			if recipient, err = parseAddress(req.Recipient); err == nil {
				v, err = d.RedeemAllYieldOnBehalfOf(from, recipient)
			}
		case req.All && req.Staked:
			v, err = d.RedeemAllYieldAsStaked(from)
		case req.All:
			v, err = d.RedeemAllYield(from)
		case req.Staked:
			v, err = d.RedeemYieldAsStaked(from, req.ID)
		default:
			v, err = d.RedeemYield(from, req.ID)
		}
		if err != nil {
			return err
		}
		out.Set(v)
		return nil
	})
	if err != nil {
		return err
	}
	return amountJSON(c, out)
}

type upkeepRequest struct {
	Time int64 `json:"time"`
}

func (srv *Manager) handleUpkeep(c echo.Context) (err error) {
	start := time.Now()
	defer func() { record("upkeep", start, err) }()
	var req upkeepRequest
	if err = c.Bind(&req); err != nil {
		return err
	}
	if err = srv.engine.Upkeep(timeOf(req.Time)); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}
