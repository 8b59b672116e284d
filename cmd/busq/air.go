package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/air"
	"github.com/mklimuk/busq/cmd/busq/console"
)

var airCmd = cli.Command{
	Name:  "air",
	Usage: "AGS02MA TVOC sensor",
	Subcommands: []*cli.Command{
		&airReadCmd,
		&airVersionCmd,
		&airCalibrateCmd,
	},
}

// airValue runs one AGS02MA request to completion.
func airValue(c *cli.Context, op func(s *air.AGS02MA, done func(uint32, error)) error) (uint32, error) {
	var value uint32
	var opErr error
	err := withSession(c, func(ctx context.Context, s *session) error {
		sensor := air.NewAGS02MA(s.sched, air.WithTVOCMode(tvocMode(c)))
		finished := make(chan struct{})
		err := op(sensor, func(v uint32, err error) {
			value, opErr = v, err
			close(finished)
		})
		if err != nil {
			return err
		}
		return s.await(ctx, finished, sensor)
	})
	if err == nil {
		err = opErr
	}
	return value, err
}

func tvocMode(c *cli.Context) byte {
	if c.Bool("direct") {
		return air.TVOCModeDirectRead
	}
	return air.TVOCModeRegisterWrite
}

var airReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "direct", Usage: "read without writing the TVOC register first"},
	},
	Action: func(c *cli.Context) error {
		ppb, err := airValue(c, func(s *air.AGS02MA, done func(uint32, error)) error {
			return s.ReadTVOC(done)
		})
		if err != nil {
			return console.Exit(1, "error getting TVOC read: %s", console.Red(err))
		}
		console.Printf("%s ppb\n", console.White(ppb))
		return nil
	},
}

var airVersionCmd = cli.Command{
	Name: "version",
	Action: func(c *cli.Context) error {
		ver, err := airValue(c, func(s *air.AGS02MA, done func(uint32, error)) error {
			return s.ReadVersion(done)
		})
		if err != nil {
			return console.Exit(1, "error reading version: %s", console.Red(err))
		}
		console.Printf("version: %d\n", ver)
		return nil
	},
}

var airCalibrateCmd = cli.Command{
	Name: "calibrate",
	Action: func(c *cli.Context) error {
		_, err := airValue(c, func(s *air.AGS02MA, done func(uint32, error)) error {
			return s.Calibrate(func(err error) { done(0, err) })
		})
		if err != nil {
			return console.Exit(1, "error calibrating: %s", console.Red(err))
		}
		console.Printf("calibrated\n")
		return nil
	},
}
