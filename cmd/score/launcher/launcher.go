package launcher

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-score/api"
	"github.com/rony4d/go-score/flags"
	"github.com/rony4d/go-score/integration"
	"github.com/rony4d/go-score/logging"
	"github.com/rony4d/go-score/metrics"
)

var (
	// Git SHA1 commit hash of the release (set via linker flags)
	gitCommit = ""

	app = flags.NewApp(gitCommit, "voting power scoring service")

	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Description: `The dumpconfig command shows configuration values after defaults, the config file, the preset and flags are merged.`,
	}
)

func init() {
	app.Flags = flags.AllFlags()
	app.Action = scoreMain
	app.Commands = []cli.Command{dumpConfigCommand}
}

// Launch parses flags and runs the scorer until it is interrupted.
func Launch(args []string) error {
	return app.Run(args)
}

func scoreMain(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}

	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	log := logger.WithField("instance", cfg.Node.Name)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	rt, err := integration.Assemble(cfg.Settings(), log, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.WithError(err).Error("Shutdown incomplete")
		}
	}()

	apiCfg := api.Config{
		Addr:           net.JoinHostPort(cfg.HTTP.Addr, strconv.Itoa(cfg.HTTP.Port)),
		RequestTimeout: cfg.HTTP.Timeout,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		Version:        app.Version,
		Strategies:     rt.Strategies.Names(),
	}
	if cfg.HTTP.Metrics {
		apiCfg.Gatherer = reg
	}
	srv := api.NewServer(apiCfg, rt.Service, log.WithField("module", "api"), m)

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"preset":  cfg.Service.Preset,
		"backend": cfg.Cache.Backend,
		"datadir": cfg.Node.DataDir,
	}).Info("Starting scorer")
	return srv.ListenAndServe(sigctx)
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}

	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	_, err = dump.Write(out)
	return err
}
