package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fyde-finance/fyde/auth"
	"github.com/fyde-finance/fyde/common"
	"github.com/fyde-finance/fyde/common/db"
	"github.com/fyde-finance/fyde/common/errors"
	"github.com/fyde-finance/fyde/common/log"
	"github.com/fyde-finance/fyde/fyde"
	"github.com/fyde-finance/fyde/ledger"
	"github.com/fyde-finance/fyde/server"
)

var (
	version = "unknown"
	build   = "unknown"
)

// ServeConfig is the node configuration: engine genesis plus the
// serving and storage surface.
type ServeConfig struct {
	fyde.Config

	ListenAddr   string `json:"listen_addr"`
	DBType       string `json:"db_type"`
	DBDir        string `json:"db_dir"`
	LogLevel     string `json:"log_level"`
	ConsoleLevel string `json:"console_level"`
	LogFile      string `json:"log_file"`

	OraclePrice    string `json:"oracle_price"`
	ExchangeSpread int64  `json:"exchange_spread"`
}

func defaultConfig() *ServeConfig {
	return &ServeConfig{
		Config: fyde.Config{
			InitialSupply:    "0x" + new(big.Int).Mul(big.NewInt(5_000_000), ledger.Unit).Text(16),
			InitialIndex:     "0x" + ledger.Unit.Text(16),
			EpochLength:      28800,
			FirstEpochNumber: 0,
			FirstEpochEnd:    time.Now().Unix() + 28800,
			WarmupPeriod:     0,
			RewardRate:       3000,
			FeeToDao:         10000,
			MaxSwapSlippage:  10000,
		},
		ListenAddr:     ":9080",
		DBType:         "goleveldb",
		DBDir:          ".fyde",
		LogLevel:       "debug",
		ConsoleLevel:   "info",
		OraclePrice:    "0x" + new(big.Int).Mul(big.NewInt(20), big.NewInt(1_000_000_000_000_000_000)).Text(16),
		ExchangeSpread: 3000,
	}
}

func setupLogger(cfg *ServeConfig) (log.Logger, error) {
	logger := log.New()
	if lv, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.IllegalArgumentError.Wrapf(err, "InvalidLogLevel(level=%s)", cfg.LogLevel)
	} else {
		logger.SetLevel(lv)
	}
	if lv, err := log.ParseLevel(cfg.ConsoleLevel); err != nil {
		return nil, errors.IllegalArgumentError.Wrapf(err, "InvalidLogLevel(level=%s)", cfg.ConsoleLevel)
	} else {
		logger.SetConsoleLevel(lv)
	}
	if cfg.LogFile != "" {
		writer, err := log.NewWriter(&log.WriterConfig{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 10,
			LocalTime:  true,
		})
		if err != nil {
			return nil, err
		}
		if err := logger.SetFileWriter(writer); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

func loadConfig(vc *viper.Viper) (*ServeConfig, error) {
	cfg := defaultConfig()
	if name := vc.GetString("config"); name != "" {
		bs, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(bs, cfg); err != nil {
			return nil, errors.IllegalArgumentError.Wrapf(err, "InvalidConfigFile(name=%s)", name)
		}
	}
	if v := vc.GetString("listen_addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v := vc.GetString("db_type"); v != "" {
		cfg.DBType = v
	}
	if v := vc.GetString("db_dir"); v != "" {
		cfg.DBDir = v
	}
	if v := vc.GetString("governor"); v != "" {
		cfg.Governor = v
	}
	if v := vc.GetString("dao"); v != "" {
		cfg.DAO = v
	}
	if v := vc.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := vc.GetString("console_level"); v != "" {
		cfg.ConsoleLevel = v
	}
	if v := vc.GetString("log_file"); v != "" {
		cfg.LogFile = v
	}
	return cfg, nil
}

func buildEngine(cfg *ServeConfig, logger log.Logger) (*fyde.Engine, *fyde.FixedRateExchange, error) {
	dbase, err := db.Open(cfg.DBDir, cfg.DBType, "fyde")
	if err != nil {
		return nil, nil, err
	}

	price := new(big.Int)
	if err := common.ParseBigInt(price, cfg.OraclePrice); err != nil {
		return nil, nil, err
	}
	exchange, err := fyde.NewFixedRateExchange(price, cfg.ExchangeSpread)
	if err != nil {
		return nil, nil, err
	}
	oracle := fyde.NewStaticOracle(price)

	engine, err := fyde.NewEngine(&cfg.Config, dbase, logger, exchange, oracle)
	if err != nil {
		return nil, nil, err
	}
	exchange.Bind(engine.Base(), engine.Settlement())
	governor := common.MustNewAddressFromString(cfg.Governor)
	if err := engine.Authority().Grant(governor, auth.Vault, exchange.Address()); err != nil {
		return nil, nil, err
	}

	if err := engine.Load(); err != nil {
		if !errors.NotFoundError.Equals(err) {
			return nil, nil, err
		}
		// fresh database, persist genesis
		if err := engine.Flush(); err != nil {
			return nil, nil, err
		}
		logger.Infof("GenesisCommitted(supply=%s,index=%s)", cfg.InitialSupply, cfg.InitialIndex)
	}
	return engine, exchange, nil
}

func newServeCmd(vc *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(vc)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			engine, _, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			srv := server.NewManager(cfg.ListenAddr, engine, logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Infof("Shutdown(signal=%s)", sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Warnf("FailToStopServer(err=%+v)", err)
			}
			return engine.Flush()
		},
	}
	registerServeFlags(cmd.Flags())
	_ = vc.BindPFlags(cmd.Flags())
	return cmd
}

func registerServeFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Configuration file path")
	flags.String("listen_addr", "", "Listen ip-port of HTTP API")
	flags.String("db_type", "", "Name of database system(goleveldb, mapdb)")
	flags.String("db_dir", "", "Database directory")
	flags.String("governor", "", "Governor address")
	flags.String("dao", "", "DAO fee collection address")
	flags.String("log_level", "", "Global log level(trace,debug,info,warn,error,fatal,panic)")
	flags.String("console_level", "", "Console log level")
	flags.String("log_file", "", "Log file path")
}

func newGenesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis [file]",
		Short: "Write a default configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			bs, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], bs, 0644)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fyde version %s build %s\n", version, build)
		},
	}
}

func main() {
	vc := viper.New()
	vc.SetEnvPrefix("FYDE")
	vc.AutomaticEnv()

	root := &cobra.Command{
		Use:   "fyde",
		Short: "Fyde proportional-share accounting engine",
	}
	root.AddCommand(newServeCmd(vc), newGenesisCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
