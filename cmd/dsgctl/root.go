package main

import (
	"context"
	"dsg-rpc/client"
	"dsg-rpc/codec"
	"dsg-rpc/config"
	"dsg-rpc/loadbalance"
	"dsg-rpc/logging"
	"dsg-rpc/object"
	"dsg-rpc/registry"
	"dsg-rpc/stack"
	"dsg-rpc/transport"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagRouter   string
	flagDec      string
	flagCodec    string
	flagLogLevel string
	flagTimeout  time.Duration
	flagTarget   string
)

var rootCmd = &cobra.Command{
	Use:          "dsgctl",
	Short:        "Send local commands to a DSG miner",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "TOML config file")
	pf.StringVar(&flagRouter, "router", "", "local router address, overrides router.addr")
	pf.StringVar(&flagDec, "dec", "", "dec app id (base58), overrides dec_id")
	pf.StringVar(&flagCodec, "codec", "", "frame codec: json, binary or msgpack")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level, overrides log.level")
	pf.DurationVar(&flagTimeout, "timeout", 10*time.Second, "deadline of a single command")
	pf.StringVar(&flagTarget, "target", "", "device id (base58) to address instead of the local device")
}

// loadConfig reads --config (or the defaults) and applies the flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return config.Config{}, err
		}
	}
	if flagRouter != "" {
		cfg.Router.Addr = flagRouter
	}
	if flagDec != "" {
		id, err := object.ParseID(flagDec)
		if err != nil {
			return config.Config{}, fmt.Errorf("--dec: %w", err)
		}
		cfg.DecID = id
	}
	if flagCodec != "" {
		ct, err := codec.ParseCodecType(flagCodec)
		if err != nil {
			return config.Config{}, fmt.Errorf("--codec: %w", err)
		}
		cfg.Router.Codec = ct
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, cfg.Validate()
}

// setupLogger installs the global logger for cfg; the environment still wins.
func setupLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		lc.Level = lvl
	}
	lc.NoColor = cfg.Log.NoColor
	lc.Out = out
	logging.ApplyEnvOverrides(&lc)
	log.Logger = logging.New(lc)
	zerolog.SetGlobalLevel(lc.Level)
	return log.Logger
}

// commandEnv is everything a client command needs; close releases it.
type commandEnv struct {
	client   *client.Client
	stack    *stack.Stack
	registry registry.Registry
	opts     []client.CallOption
}

func newCommandEnv(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg, cmd.ErrOrStderr())

	hasher, err := object.HasherByName(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	balancer, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry.Open()
	if err != nil {
		return nil, err
	}

	pool := transport.NewPool(cfg.Router.PoolSize, cfg.Router.Codec,
		transport.WithPoolLogger(logger),
		transport.WithTransportOptions(transport.WithHeartbeat(cfg.Router.Heartbeat)),
	)
	stackOpts := []stack.Option{stack.WithBalancer(balancer), stack.WithLogger(logger)}
	if reg != nil {
		stackOpts = append(stackOpts, stack.WithRegistry(reg))
	}
	st := stack.New(cfg.Router.Addr, pool, stackOpts...)

	env := &commandEnv{
		client:   client.New(st, cfg.DecID, client.WithHasher(hasher), client.WithLogger(logger)),
		stack:    st,
		registry: reg,
	}
	if flagTarget != "" {
		target, err := object.ParseID(flagTarget)
		if err != nil {
			env.close()
			return nil, fmt.Errorf("--target: %w", err)
		}
		env.opts = append(env.opts, client.To(target))
	}
	return env, nil
}

func (e *commandEnv) close() {
	_ = e.stack.Close()
	if e.registry != nil {
		_ = e.registry.Close()
	}
}

// runClient wraps a client command: it builds the environment, applies --timeout
// and prints the result as indented JSON.
func runClient(fn func(ctx context.Context, env *commandEnv, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := newCommandEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		result, err := fn(ctx, env, args)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}
