package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/accel"
	"github.com/mklimuk/busq/cmd/busq/console"
)

var motionCmd = cli.Command{
	Name:  "motion",
	Usage: "BMA220 slope (motion) detection",
	Subcommands: []*cli.Command{
		&motionInitCmd,
		&motionCheckCmd,
		&motionResetCmd,
	},
}

// withAccel opens the bus and runs op until its callback fires.
func withAccel(c *cli.Context, op func(s *accel.BMA220, done func()) error) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		sensor := accel.NewBMA220(s.sched)
		finished := make(chan struct{})
		if err := op(sensor, func() { close(finished) }); err != nil {
			return err
		}
		return s.await(ctx, finished)
	})
}

var motionInitCmd = cli.Command{
	Name: "init",
	Action: func(c *cli.Context) error {
		var initErr error
		err := withAccel(c, func(s *accel.BMA220, done func()) error {
			return s.InitMotionDetection(func(err error) {
				initErr = err
				done()
			})
		})
		if err == nil {
			err = initErr
		}
		if err != nil {
			return console.Exit(1, "error initializing BMA220: %s", console.Red(err))
		}
		console.Printf("motion detection %s\n", console.Green("enabled"))
		return nil
	},
}

var motionCheckCmd = cli.Command{
	Name: "check",
	Action: func(c *cli.Context) error {
		var motion int
		var checkErr error
		err := withAccel(c, func(s *accel.BMA220, done func()) error {
			return s.CheckMotionInterrupt(func(m int, err error) {
				motion, checkErr = m, err
				done()
			})
		})
		if err == nil {
			err = checkErr
		}
		if err != nil {
			return console.Exit(1, "error checking motion detection on BMA220: %s", console.Red(err))
		}
		if motion > 0 {
			console.Printf("motion interrupt: %s\n", console.Yellow(motion))
		} else {
			console.Printf("motion interrupt: %s\n", console.Green(motion))
		}
		return nil
	},
}

var motionResetCmd = cli.Command{
	Name: "reset",
	Action: func(c *cli.Context) error {
		var resetErr error
		err := withAccel(c, func(s *accel.BMA220, done func()) error {
			return s.ResetMotionInterrupt(func(err error) {
				resetErr = err
				done()
			})
		})
		if err == nil {
			err = resetErr
		}
		if err != nil {
			return console.Exit(1, "error resetting motion detection on BMA220: %s", console.Red(err))
		}
		return nil
	},
}
