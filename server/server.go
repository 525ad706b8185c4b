package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gopkg.in/go-playground/validator.v9"

	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/fyde"
	"github.com/fyde-finance/fyde/server/metric"
)

// Manager serves the engine's HTTP API: REST operations under
// /api/v1, the websocket event stream and prometheus metrics.
type Manager struct {
	e      *echo.Echo
	addr   string
	engine *fyde.Engine
	wssm   *wsSessionManager
	log    log.Logger
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	if err := rv.v.Struct(i); err != nil {
		return errors.IllegalArgumentError.Wrap(err, "InvalidRequest")
	}
	return nil
}

func NewManager(addr string, engine *fyde.Engine, logger log.Logger) *Manager {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = &requestValidator{v: validator.New()}

	return &Manager{
		e:      e,
		addr:   addr,
		engine: engine,
		wssm:   newWSSessionManager(logger),
		log:    logger.WithFields(log.Fields{log.FieldKeyModule: "server"}),
	}
}

func (srv *Manager) Start() error {
	srv.e.Use(middleware.Recover())
	srv.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		MaxAge: 3600,
	}))

	g := srv.e.Group("/api/v1")

	g.GET("/index", srv.handleIndex)
	g.GET("/epoch", srv.handleEpoch)
	g.GET("/supply", srv.handleSupply)
	g.GET("/balance/:addr", srv.handleBalance)
	g.GET("/warmup/:addr", srv.handleWarmup)
	g.GET("/deposits/:addr", srv.handleDeposits)
	g.GET("/yield/:id", srv.handleYield)

	g.POST("/stake", srv.handleStake)
	g.POST("/claim", srv.handleClaim)
	g.POST("/forfeit", srv.handleForfeit)
	g.POST("/unstake", srv.handleUnstake)
	g.POST("/wrap", srv.handleWrap)
	g.POST("/unwrap", srv.handleUnwrap)
	g.POST("/rebase", srv.handleRebase)
	g.POST("/donate", srv.handleDonate)
	g.POST("/withdraw", srv.handleWithdraw)
	g.POST("/redeem", srv.handleRedeem)
	g.POST("/upkeep", srv.handleUpkeep)

	srv.e.GET("/events", srv.wssm.RunEventSession(srv.engine.Journal()))
	srv.e.GET("/metrics", echo.WrapHandler(metric.PrometheusExporter()))

	srv.log.Infof("Listen(addr=%s)", srv.addr)
	return srv.e.Start(srv.addr)
}

func (srv *Manager) Stop(ctx context.Context) error {
	srv.wssm.StopAllSessions()
	return srv.e.Shutdown(ctx)
}
