// Command rollingdb inspects and maintains a rolling block store on disk.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/rollingdb"
	"github.com/unkn0wn-root/rollingdb/engine/boltdb"
	zaplog "github.com/unkn0wn-root/rollingdb/log/zap"
)

// Commit is set with -ldflags at build time.
var Commit string

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[rollingdb] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "rollingdb"
	app.Version = fmt.Sprintf("%s commit=%s", "0.1.0", Commit)
	app.Usage = "inspect and maintain a rolling block store"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a yaml config file",
		},
		cli.StringFlag{
			Name:  "root",
			Usage: "storage root; overrides root: from the config file",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Usage: "debug, info, warn or error; overrides log_level:",
		},
	}
	app.Commands = []cli.Command{
		statsCommand,
		rotateCommand,
		settingsCommand,
		loadBundleCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// env is everything a command needs; close releases it.
type env struct {
	cfg *config
	log *zap.Logger
	db  *rollingdb.RollingDB
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("closing store", zap.Error(err))
	}
	_ = e.log.Sync()
}

func setup(ctx *cli.Context) (*env, error) {
	cfg, err := loadConfig(ctx.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if v := ctx.GlobalString("root"); v != "" {
		cfg.Root = v
	}
	if v := ctx.GlobalString("loglevel"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zl, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := rollingdb.LoadOrCreate(rollingdb.Options{
		Root:   cfg.Root,
		Opener: boltdb.NewOpener(cfg.Bolt),
		Logger: zaplog.New(zl),
	})
	if err != nil {
		_ = zl.Sync()
		return nil, err
	}
	return &env{cfg: cfg, log: zl, db: db}, nil
}

// withEnv opens the store around fn.
func withEnv(fn func(*cli.Context, *env) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, e)
	}
}
