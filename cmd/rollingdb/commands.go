package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/rollingdb/bundle"
	zaplog "github.com/unkn0wn-root/rollingdb/log/zap"
)

var statsCommand = cli.Command{
	Name:   "stats",
	Usage:  "Show generation names, creation epoch and sizes.",
	Action: withEnv(stats),
}

func stats(_ *cli.Context, e *env) error {
	st, err := e.db.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("root:                   %s\n", st.Root)
	fmt.Printf("current:                %s (%s)\n", st.Current, humanize.Bytes(st.CurrentSize))
	fmt.Printf("old:                    %s (%s)\n", st.Old, humanize.Bytes(st.OldSize))
	fmt.Printf("current creation epoch: %d\n", st.CurrentCreationEpoch)
	fmt.Printf("total:                  %s\n", humanize.Bytes(st.TotalSize()))
	fmt.Printf("engine-reported:        current %s, old %s\n",
		humanize.Bytes(st.CurrentEngineSize), humanize.Bytes(st.OldEngineSize))
	return nil
}

var rotateCommand = cli.Command{
	Name:  "rotate",
	Usage: "Start a fresh generation and delete the old one.",
	Description: `
	Rotate creates a new current generation, demotes the current one to old
	and removes the previous old generation from disk. Settings are carried
	into the new generation.`,
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name:  "epoch",
			Usage: "epoch to record as the creation epoch of the new generation",
		},
	},
	Action: withEnv(rotate),
}

func rotate(ctx *cli.Context, e *env) error {
	if !ctx.IsSet("epoch") {
		return errors.New("--epoch is required")
	}
	epoch := ctx.Int64("epoch")
	if err := e.db.Rotate(epoch); err != nil {
		return err
	}
	fmt.Printf("rotated at epoch %d: current=%s old=%s\n", epoch, e.db.CurrentName(), e.db.OldName())
	return nil
}

var settingsCommand = cli.Command{
	Name:  "settings",
	Usage: "Read and write named settings.",
	Subcommands: []cli.Command{
		{
			Name:      "get",
			Usage:     "Print a setting.",
			ArgsUsage: "name",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "hex", Usage: "always print the value hex-encoded"},
			},
			Action: withEnv(settingsGet),
		},
		{
			Name:      "set",
			Usage:     "Write a setting into the current generation.",
			ArgsUsage: "name value",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "hex", Usage: "value is hex-encoded"},
			},
			Action: withEnv(settingsSet),
		},
		{
			Name:   "list",
			Usage:  "List setting names across both generations.",
			Action: withEnv(settingsList),
		},
	},
}

func settingsGet(ctx *cli.Context, e *env) error {
	name := ctx.Args().First()
	if name == "" {
		return cli.ShowCommandHelp(ctx, "get")
	}
	v, ok, err := e.db.ReadSetting(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("setting %q not found", name)
	}
	fmt.Println(renderValue(v, ctx.Bool("hex")))
	return nil
}

func settingsSet(ctx *cli.Context, e *env) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "set")
	}
	name, value := ctx.Args().Get(0), []byte(ctx.Args().Get(1))
	if ctx.Bool("hex") {
		b, err := hex.DecodeString(string(value))
		if err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		value = b
	}
	return e.db.WriteSetting(name, value)
}

func settingsList(_ *cli.Context, e *env) error {
	names, err := e.db.SettingNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// renderValue prints text settings as-is and anything else as hex.
func renderValue(v []byte, forceHex bool) string {
	if forceHex || !utf8.Valid(v) {
		return hex.EncodeToString(v)
	}
	return string(v)
}

var loadBundleCommand = cli.Command{
	Name:  "load-bundle",
	Usage: "Import the bootstrap bundles configured for a network.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "network whose bundles to import",
		},
		cli.StringFlag{
			Name:  "path",
			Usage: "local CAR file; overrides bundle.override_path",
		},
	},
	Action: withEnv(loadBundle),
}

func loadBundle(ctx *cli.Context, e *env) error {
	network := ctx.String("network")
	if network == "" {
		return errors.New("--network is required")
	}
	infos, err := e.cfg.bundleInfos()
	if err != nil {
		return err
	}

	bc := e.cfg.Bundle.Config
	if p := ctx.String("path"); p != "" {
		bc.OverridePath = p
	}
	bc.Logger = zaplog.New(e.log)

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	loaded, err := bundle.New(e.db, bc).Load(runCtx, network, infos)
	if err != nil {
		return err
	}
	e.log.Info("bundles imported", zap.String("network", network), zap.Int("count", len(loaded)))
	for _, m := range loaded {
		fmt.Println(m)
	}
	return nil
}
