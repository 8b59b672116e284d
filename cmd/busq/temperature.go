package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq/cmd/busq/console"
	"github.com/mklimuk/busq/environment"
)

var tempReadCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "read a temperature sensor",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "sensor",
			Aliases: []string{"s"},
			Value:   "hih6021",
			Usage:   "tc74, hih6021 or shtc3",
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "sensor address (hex), defaults to the sensor default",
		},
	},
	Action: func(c *cli.Context) error {
		var addr byte
		if c.IsSet("addr") {
			var err error
			if addr, err = parseDeviceAddress(c.String("addr")); err != nil {
				return console.Exit(1, "%s", err)
			}
		}
		return withSession(c, func(ctx context.Context, s *session) error {
			done := make(chan struct{})
			switch c.String("sensor") {
			case "tc74":
				var opts []environment.TC74ConfigOption
				if addr != 0 {
					opts = append(opts, environment.WithAddress(addr))
				}
				sensor := environment.NewTC74(s.sched, opts...)
				var temp float32
				var readErr error
				err := sensor.RequestTemperature(func(t float32, err error) {
					temp, readErr = t, err
					close(done)
				})
				if err == nil {
					err = s.await(ctx, done)
				}
				if err == nil {
					err = readErr
				}
				if err != nil {
					return console.Exit(1, "error getting temperature read: %s", console.Red(err))
				}
				console.PInfof(console.PictoThermometer, "%s", console.White(temp))
			case "hih6021":
				var opts []environment.HIH6021Option
				if addr != 0 {
					opts = append(opts, environment.WithHIH6021Address(addr))
				}
				sensor := environment.NewHIH6021(s.sched, opts...)
				var temp, hum float32
				var readErr error
				err := sensor.Measure(func(t, h float32, err error) {
					temp, hum, readErr = t, h, err
					close(done)
				})
				if err == nil {
					err = s.await(ctx, done)
				}
				if err == nil {
					err = readErr
				}
				if err != nil {
					return console.Exit(1, "error getting temperature read: %s", console.Red(err))
				}
				console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(temp), console.PictoHumidity, console.White(hum))
			case "shtc3":
				sensor := environment.NewSHTC3(s.sched)
				var temp, hum float32
				var readErr error
				err := sensor.Measure(func(t, h float32, err error) {
					temp, hum, readErr = t, h, err
					close(done)
				})
				if err == nil {
					err = s.await(ctx, done, sensor)
				}
				if err == nil {
					err = readErr
				}
				if err != nil {
					return console.Exit(1, "error getting temperature read: %s", console.Red(err))
				}
				console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(temp), console.PictoHumidity, console.White(hum))
			default:
				return console.Exit(1, "unknown sensor %q", c.String("sensor"))
			}
			return nil
		})
	},
}
