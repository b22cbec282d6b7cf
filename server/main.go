package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/action"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/agent"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/analytics"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/config"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/flow"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/memory"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/state"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config-file", "", "Path to config file.")
	flags.Int("http-port", 8080, "http port for rest endpoints")
	flags.String("state-store", string(config.STATE_STORE_MEMORY), "fast tier implementation: redis or memory")
	flags.String("durable-store", string(config.DURABLE_STORE_MEMORY), "durable tier implementation: postgres or memory")
	flags.String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	flags.String("namespace", "contentflow", "namespace used in redis keys")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.Int32("postgres-max-conns", 10, "postgres pool size")
	flags.Int("connect-retries", 5, "store connection retries at startup")
	flags.Duration("state-ttl", config.DEFAULT_STATE_TTL, "fast tier state expiry")
	flags.Int("max-loop-iterations", config.MAX_LOOP_ITERATIONS, "loop iteration cap")
	flags.Int("launcher-partitions", 8, "number of run workers")
	flags.Int("launcher-capacity", 64, "queued runs per worker")
	flags.Duration("run-lease", flow.DEFAULT_RUN_LEASE, "how long a run holds an execution between node boundaries")
	flags.String("encoder-decoder", string(config.JSON_ENCODER_DECODER), "encoder decoder used to serialize templates")
	flags.String("analytics-file", "", "write node analytics records to this file")
	flags.String("log-level", "info", "log level")
	flags.Bool("development", false, "human readable logs")
	return viper.BindPFlags(flags)
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile := viper.GetString("config-file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	viper.SetEnvPrefix("contentflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	c.cfg.Config = config.Default()
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StateStoreType = config.StateStoreType(viper.GetString("state-store"))
	c.cfg.DurableStoreType = config.DurableStoreType(viper.GetString("durable-store"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.ConnectRetries = viper.GetInt("connect-retries")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.PostgresConfig.MaxConns = viper.GetInt32("postgres-max-conns")
	c.cfg.PostgresConfig.ConnectRetries = viper.GetInt("connect-retries")
	c.cfg.StateTTL = viper.GetDuration("state-ttl")
	c.cfg.MaxLoopIterations = viper.GetInt("max-loop-iterations")
	c.cfg.LauncherConfig.Partitions = viper.GetInt("launcher-partitions")
	c.cfg.LauncherConfig.Capacity = viper.GetInt("launcher-capacity")
	c.cfg.LauncherConfig.RunLease = viper.GetDuration("run-lease")
	c.cfg.EncoderDecoderType = config.EncoderDecoderType(viper.GetString("encoder-decoder"))
	if file := viper.GetString("analytics-file"); file != "" {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: file, CollectorType: analytics.LOG_FILE_DATA_COLLECTOR}
	}
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.Development = viper.GetBool("development")
	return logger.Init(c.cfg.LogLevel, c.cfg.Development)
}

func (c *cli) serve(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return agent.Run(ctx)
}

func readTemplate(path string) (*model.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return metadata.DecodeTemplate(data)
}

func (c *cli) validate(cmd *cobra.Command, args []string) error {
	tpl, err := readTemplate(args[0])
	if err != nil {
		return err
	}
	res := metadata.NewValidator().Validate(tpl)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return res.Err()
}

// run executes a template file in process and prints every progress event
// as one JSON line.
func (c *cli) run(cmd *cobra.Command, args []string) error {
	tpl, err := readTemplate(args[0])
	if err != nil {
		return err
	}
	pairs, err := cmd.Flags().GetStringSlice("input")
	if err != nil {
		return err
	}
	input, err := parseInput(pairs)
	if err != nil {
		return err
	}

	templates := memory.NewTemplateStorage()
	metadataService := metadata.NewService(templates)
	saved, _, err := metadataService.SaveTemplate(*tpl)
	if err != nil {
		return err
	}
	store := memory.NewExecutionStore()
	st := state.NewManager(memory.NewStateStore(), store, c.cfg.TTL())
	conditions := conditional.NewExecutor()
	nodes := action.NewExecutor(store, provider.NewInProcessSet(), conditions, loop.NewExecutor(c.cfg.LoopCap(), conditions))
	executor := flow.NewExecutor(metadataService, store, st, nodes).WithRunLease(c.cfg.LauncherConfig.RunLease)
	launcher := flow.NewDirectLauncher(executor)
	defer launcher.Stop()
	service := flow.NewService(metadataService, store, st, executor, launcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	async := false
	exec, err := service.Launch(ctx, model.LaunchRequest{TemplateId: saved.Id, Input: input, Async: &async})
	if err != nil {
		return err
	}
	events, err := executor.Stream(ctx, exec.Id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	final, err := service.Get(context.Background(), exec.Id)
	if err != nil {
		return err
	}
	switch final.Status {
	case model.COMPLETED:
		return nil
	case model.FAILED:
		return errors.New(final.ErrorMessage)
	default:
		return fmt.Errorf("execution %s ended %s", final.Id, final.Status)
	}
}

// parseInput turns key=value pairs into launch input. Values that parse as
// JSON keep their type.
func parseInput(pairs []string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			input[key] = typed
		} else {
			input[key] = value
		}
	}
	return input, nil
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:               "contentflow",
		Short:             "content workflow execution engine",
		PersistentPreRunE: cli.setupConfig,
		RunE:              cli.serve,
		SilenceUsage:      true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "serve the REST api",
		RunE:  cli.serve,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "validate a workflow template file",
		Args:  cobra.ExactArgs(1),
		RunE:  cli.validate,
	})
	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "execute a workflow template file in process",
		Args:  cobra.ExactArgs(1),
		RunE:  cli.run,
	}
	runCmd.Flags().StringSlice("input", nil, "launch input as key=value, repeatable")
	cmd.AddCommand(runCmd)

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
