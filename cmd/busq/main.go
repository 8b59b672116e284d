package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/cmd/busq/console"
	"github.com/mklimuk/busq/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := cli.NewApp()
	app.Name = "busq"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "scheduled I2C bus access"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   config.AdapterMCP2221,
			Usage:   "bus adapter: mcp2221, generic, nanopi or sim",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/i2c-1",
			Usage:   "bus name for the generic adapter",
		},
		&cli.IntFlag{
			Name:  "bus",
			Value: -1,
			Usage: "bus number for the nanopi adapter",
		},
		&cli.IntFlag{
			Name:  "index",
			Value: -1,
			Usage: "MCP2221 index when several bridges are connected",
		},
		&cli.StringFlag{
			Name:    "executor",
			Aliases: []string{"e"},
			Value:   config.ExecutorPolled,
			Usage:   "transfer executor: polled or async",
		},
		&cli.StringFlag{
			Name:  "speed",
			Usage: "bus clock (generic adapter), e.g. 100kHz",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 100 * time.Millisecond,
			Usage: "single transfer timeout, raised to the adapter minimum when lower",
		},
		&cli.DurationFlag{
			Name:  "wait",
			Value: 5 * time.Second,
			Usage: "overall command timeout",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&readCmd,
		&writeCmd,
		&tempReadCmd,
		&gpioCmd,
		&motionCmd,
		&airCmd,
		&lightCmd,
		&pollCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			slog.Error("command failed", "error", err)
			return exerr.ExitCode()
		}
		console.Errorf("%s", err)
		return 1
	}
	return 0
}
