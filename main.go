package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/colorstring"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"meshnode/node"
)

func main() {
	app := &cli.App{
		Name:  "meshnode",
		Usage: "trackerless peer-to-peer file distribution node",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Required: true, Usage: "TCP port to listen on"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "path to seed (if it exists) or leech destination (if it doesn't)"},
			&cli.StringFlag{Name: "peer", Usage: "host:port of an initial peer to dial"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn, error"},
			&cli.BoolFlag{Name: "no-progress", Usage: "disable the progress bar / periodic progress log lines"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, colorstring.Color("[red]error:[reset] ")+err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), 1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if peer := c.String("peer"); peer != "" {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --peer %q: %v", peer, err), 1)
		}
	}

	id, err := node.NewID()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed generating node id: %v", err), 1)
	}

	fmt.Println(colorstring.Color(fmt.Sprintf("[green]meshnode[reset] starting, id=%s", id)))

	n := node.New(node.Config{
		ID:           id,
		ListenPort:   c.Int("port"),
		FilePath:     c.String("file"),
		InitialPeer:  c.String("peer"),
		ShowProgress: !c.Bool("no-progress"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("node exited with error: %v", err), 1)
	}
	return nil
}
