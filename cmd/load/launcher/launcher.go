package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-load/flags"
	"github.com/rony4d/go-load/version"
)

var app = newApp()

func newApp() *cli.App {
	app := flags.NewApp("Load Network execution client")
	app.Flags = flags.Merge(
		flags.CommonFlags(),
		flags.NodeFlags(),
		flags.EngineFlags(),
		flags.TxPoolFlags(),
		flags.GateFlags(),
	)
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "Show the effective configuration as TOML",
			Action: dumpConfigCmd,
		},
		{
			Name:   "version",
			Usage:  "Print client identity",
			Action: versionCmd,
		},
	}
	return app
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}

func runNode(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	log.WithField("version", version.String()).Info("Starting go-load")

	node, err := NewNode(cfg, log)
	if err != nil {
		return err
	}
	defer node.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := node.Run(runCtx); err != nil {
		log.WithError(err).Error("Node stopped with error")
		return err
	}
	log.Info("Node stopped")
	return nil
}

func dumpConfigCmd(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	out, err := dumpConfig(cfg)
	if err != nil {
		return err
	}
	if path := ctx.Args().First(); path != "" {
		return os.WriteFile(path, out, 0o644)
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}

func versionCmd(ctx *cli.Context) error {
	fmt.Fprintln(ctx.App.Writer, version.ClientName)
	fmt.Fprintln(ctx.App.Writer, "Version:", version.String())
	fmt.Fprintln(ctx.App.Writer, "Commit:", version.Commit())
	return nil
}
