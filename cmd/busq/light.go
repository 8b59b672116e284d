package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/cmd/busq/console"
	"github.com/mklimuk/busq/environment"
)

var lightCmd = cli.Command{
	Name:  "light",
	Usage: "BH1750 ambient light sensor",
	Subcommands: []*cli.Command{
		&lightReadCmd,
	},
}

var lightReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Value: "l",
			Usage: "address pin level: l (0x23) or h (0x5C)",
		},
	},
	Action: func(c *cli.Context) error {
		var addr byte
		switch c.String("addr") {
		case "h":
			addr = environment.BH1750AddrHigh
		case "l":
			addr = environment.BH1750AddrLow
		default:
			return console.Exit(1, "unknown address level %q", c.String("addr"))
		}
		return withSession(c, func(ctx context.Context, s *session) error {
			sensor := environment.NewBH1750(s.sched, addr)
			done := make(chan struct{})
			var lux int
			var readErr error
			err := sensor.RequestLux(func(l int, err error) {
				lux, readErr = l, err
				close(done)
			})
			if err == nil {
				err = s.await(ctx, done, sensor)
			}
			if err == nil {
				err = readErr
			}
			if err != nil {
				return console.Exit(1, "error getting light sensor read: %s", console.Red(err))
			}
			console.Printf("%s lux\n", console.White(lux))
			return nil
		})
	},
}
