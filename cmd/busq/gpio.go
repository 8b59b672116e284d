package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/cmd/busq/console"
	"github.com/mklimuk/busq/gpio"
)

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "MCP23017 I/O expander",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Value: fmt.Sprintf("%x", gpio.DefaultMCP23017Address),
			Usage: "expander address (hex)",
		},
		&cli.StringFlag{
			Name:  "set",
			Value: "a",
			Usage: "I/O set a or b",
		},
	},
	Subcommands: []*cli.Command{
		&gpioStatusCmd,
		&gpioReadCmd,
		&gpioConfigureCmd,
		&gpioPullCmd,
	},
}

// withExpander opens the bus and runs op until its callback fires. op
// returns the submission error and takes the completion signal.
func withExpander(c *cli.Context, op func(exp *gpio.MCP23017, done func()) error) error {
	addr, err := parseDeviceAddress(c.String("addr"))
	if err != nil {
		return console.Exit(1, "%s", err)
	}
	return withSession(c, func(ctx context.Context, s *session) error {
		exp := gpio.NewMCP23017(s.sched, addr)
		finished := make(chan struct{})
		if err := op(exp, func() { close(finished) }); err != nil {
			return err
		}
		return s.await(ctx, finished)
	})
}

var gpioReadCmd = cli.Command{
	Name:  "read",
	Usage: "configure both sets as inputs and read them",
	Action: func(c *cli.Context) error {
		var values []byte
		var readErr error
		err := withExpander(c, func(exp *gpio.MCP23017, done func()) error {
			return exp.InitA(0xFF, func(err error) {
				if err != nil {
					readErr = fmt.Errorf("could not initialize gpio: %w", err)
					done()
					return
				}
				err = exp.InitB(0xFF, func(err error) {
					if err != nil {
						readErr = fmt.Errorf("could not initialize gpio: %w", err)
						done()
						return
					}
					err = exp.Read(func(v []byte, err error) {
						values, readErr = v, err
						done()
					})
					if err != nil {
						readErr = err
						done()
					}
				})
				if err != nil {
					readErr = err
					done()
				}
			})
		})
		if err == nil {
			err = readErr
		}
		if err != nil {
			return console.Exit(1, "could not read gpio: %s", console.Red(err))
		}
		console.Printf("I/O A: %#X\nI/O B: %#X\n", values[0], values[1])
		return nil
	},
}

var gpioStatusCmd = cli.Command{
	Name:  "status",
	Usage: "read the IOCON register",
	Action: func(c *cli.Context) error {
		var data byte
		var readErr error
		err := withExpander(c, func(exp *gpio.MCP23017, done func()) error {
			cb := func(v byte, err error) {
				data, readErr = v, err
				done()
			}
			if c.String("set") == "b" {
				return exp.ReadSettingsB(cb)
			}
			return exp.ReadSettingsA(cb)
		})
		if err == nil {
			err = readErr
		}
		if err != nil {
			return console.Exit(1, "could not read settings: %s", console.Red(err))
		}
		console.Printf("IOCON content: %#X\n", data)
		return nil
	},
}

var gpioConfigureCmd = cli.Command{
	Name:      "configure",
	Usage:     "write the IOCON register",
	ArgsUsage: "<hex value>",
	Action: func(c *cli.Context) error {
		return writeExpander(c, "IOCON", func(exp *gpio.MCP23017, value byte, done func(error)) error {
			if c.String("set") == "b" {
				return exp.WriteSettingsB(value, done)
			}
			return exp.WriteSettingsA(value, done)
		})
	},
}

var gpioPullCmd = cli.Command{
	Name:      "pull",
	Usage:     "write the GPPU (pull-up) register",
	ArgsUsage: "<hex value>",
	Action: func(c *cli.Context) error {
		return writeExpander(c, "GPPU", func(exp *gpio.MCP23017, value byte, done func(error)) error {
			if c.String("set") == "b" {
				return exp.PullUpB(value, done)
			}
			return exp.PullUpA(value, done)
		})
	},
}

func writeExpander(c *cli.Context, name string, write func(*gpio.MCP23017, byte, func(error)) error) error {
	if c.NArg() != 1 {
		return console.Exit(1, "expected 1 argument, got %d", c.NArg())
	}
	value, err := parseByte(c.Args().Get(0))
	if err != nil {
		return console.Exit(1, "%s", err)
	}
	var writeErr error
	err = withExpander(c, func(exp *gpio.MCP23017, done func()) error {
		return write(exp, value, func(err error) {
			writeErr = err
			done()
		})
	})
	if err == nil {
		err = writeErr
	}
	if err != nil {
		return console.Exit(1, "could not write %s: %s", name, console.Red(err))
	}
	console.Printf("Wrote %s content: %#X\n", name, value)
	return nil
}
