package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/cmd/busq/console"
)

var registerFlag = &cli.StringFlag{
	Name:    "register",
	Aliases: []string{"r"},
	Usage:   "register address sent before the payload (hex)",
}

var readCmd = cli.Command{
	Name:      "read",
	Aliases:   []string{"rd"},
	Usage:     "read raw bytes from a device",
	ArgsUsage: "<address> <length>",
	Flags:     []cli.Flag{registerFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		addr, err := parseAddress(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		length, err := strconv.Atoi(c.Args().Get(1))
		if err != nil || length <= 0 {
			return console.Exit(1, "invalid length %q", c.Args().Get(1))
		}
		extra, err := extraFromFlag(c)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		buf := make([]byte, length)
		return withSession(c, func(ctx context.Context, s *session) error {
			var tx busq.Transaction
			s.sched.SubmitRead(&tx, addr, extra, buf)
			if err := s.sched.WaitFinishContext(ctx, &tx); err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			if err := tx.Err(); err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			console.Printf("%s", hex.Dump(buf))
			return nil
		})
	},
}

var writeCmd = cli.Command{
	Name:      "write",
	Aliases:   []string{"wr"},
	Usage:     "write raw bytes to a device",
	ArgsUsage: "<address> <hex data>",
	Flags: []cli.Flag{
		registerFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 || c.NArg() > 2 {
			return console.Exit(1, "expected 1 or 2 arguments, got %d", c.NArg())
		}
		addr, err := parseAddress(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		var data []byte
		if c.NArg() == 2 {
			data, err = parseHex(c.Args().Get(1))
			if err != nil {
				return console.Exit(1, "%s", err)
			}
		}
		extra, err := extraFromFlag(c)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write %d bytes to %#x?", len(data), addr))
			if err != nil {
				return console.Exit(1, "prompt error: %s", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		return withSession(c, func(ctx context.Context, s *session) error {
			var tx busq.Transaction
			s.sched.SubmitWrite(&tx, addr, extra, data)
			if err := s.sched.WaitFinishContext(ctx, &tx); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			if err := tx.Err(); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			console.Printf("wrote %s bytes to %#x\n", console.White(len(data)), addr)
			return nil
		})
	},
}

func extraFromFlag(c *cli.Context) (uint32, error) {
	if !c.IsSet("register") {
		return 0, nil
	}
	reg, err := parseByte(c.String("register"))
	if err != nil {
		return 0, fmt.Errorf("invalid register: %w", err)
	}
	return busq.Register(reg), nil
}
