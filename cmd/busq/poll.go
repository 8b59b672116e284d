package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/accel"
	"github.com/mklimuk/busq/air"
	"github.com/mklimuk/busq/cmd/busq/console"
	"github.com/mklimuk/busq/config"
	"github.com/mklimuk/busq/environment"
	"github.com/mklimuk/busq/gpio"
	"github.com/mklimuk/busq/metrics"
)

var pollCmd = cli.Command{
	Name:  "poll",
	Usage: "periodically read every device listed in a config file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "bus config file (YAML)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve Prometheus metrics on this address, e.g. :9100",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return console.Exit(1, "could not load config: %s", console.Red(err))
		}
		if len(cfg.Devices) == 0 {
			return console.Exit(1, "no devices configured")
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []busq.Option
		if addr := c.String("metrics-addr"); addr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			mcfg := metrics.DefaultConfig()
			mcfg.Bus = cfg.Adapter
			opts = append(opts, busq.WithObserver(metrics.New(reg, mcfg)))
			shutdown := serveMetrics(addr, reg)
			defer shutdown()
		}

		s, err := openSession(ctx, cfg, opts...)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		defer s.close()
		pollers, err := newPollers(s.sched, cfg.Devices)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		slog.Info("polling", "devices", len(pollers), "interval", cfg.Interval, "adapter", cfg.Adapter, "executor", cfg.Executor)
		return pollLoop(ctx, s.sched, pollers, cfg.Interval)
	},
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// poller issues one request for a device; the result is reported from the
// completion callback. deferred is set for drivers that split requests
// around a device gap.
type poller struct {
	name     string
	poll     func() error
	deferred busq.Poller
}

func newPollers(bus busq.Submitter, devices []config.Device) ([]poller, error) {
	pollers := make([]poller, 0, len(devices))
	for _, d := range devices {
		log := slog.With("device", d.Name, "kind", d.Kind)
		p := poller{name: d.Name}
		switch d.Kind {
		case config.KindTC74:
			var opts []environment.TC74ConfigOption
			if d.Address != 0 {
				opts = append(opts, environment.WithAddress(byte(d.Address)))
			}
			sensor := environment.NewTC74(bus, opts...)
			p.poll = func() error {
				return sensor.RequestTemperature(func(temp float32, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "temperature", temp)
				})
			}
		case config.KindHIH6021:
			var opts []environment.HIH6021Option
			if d.Address != 0 {
				opts = append(opts, environment.WithHIH6021Address(byte(d.Address)))
			}
			sensor := environment.NewHIH6021(bus, opts...)
			p.poll = func() error {
				return sensor.Measure(func(temp, hum float32, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "temperature", temp, "humidity", hum)
				})
			}
		case config.KindMCP23017:
			addr := byte(gpio.DefaultMCP23017Address)
			if d.Address != 0 {
				addr = byte(d.Address)
			}
			exp := gpio.NewMCP23017(bus, addr)
			p.poll = func() error {
				return exp.Read(func(values []byte, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "a", fmt.Sprintf("%#02x", values[0]), "b", fmt.Sprintf("%#02x", values[1]))
				})
			}
		case config.KindBMA220:
			addr := byte(accel.DefaultAddress)
			if d.Address != 0 {
				addr = byte(d.Address)
			}
			sensor := accel.NewBMA220At(bus, addr)
			p.poll = func() error {
				return sensor.CheckMotionInterrupt(func(motion int, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "motion", motion)
				})
			}
		case config.KindAGS02MA:
			var opts []air.AGS02MAOpt
			if d.Address != 0 {
				opts = append(opts, air.WithAddress(byte(d.Address)))
			}
			sensor := air.NewAGS02MA(bus, opts...)
			p.deferred = sensor
			p.poll = func() error {
				return sensor.ReadTVOC(func(ppb uint32, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "tvoc_ppb", ppb)
				})
			}
		case config.KindSHTC3:
			sensor := environment.NewSHTC3(bus)
			p.deferred = sensor
			p.poll = func() error {
				return sensor.Measure(func(temp, hum float32, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "temperature", temp, "humidity", hum)
				})
			}
		case config.KindBH1750:
			addr := byte(environment.BH1750AddrLow)
			if d.Address != 0 {
				addr = byte(d.Address)
			}
			sensor := environment.NewBH1750(bus, addr)
			p.deferred = sensor
			p.poll = func() error {
				return sensor.RequestLux(func(lux int, err error) {
					if err != nil {
						log.Error("read failed", "error", err)
						return
					}
					log.Info("reading", "lux", lux)
				})
			}
		default:
			return nil, fmt.Errorf("unsupported device kind %q", d.Kind)
		}
		pollers = append(pollers, p)
	}
	return pollers, nil
}

// pollLoop keeps the scheduler running and starts a polling round on every
// tick. Devices still busy with the previous round are skipped. While a
// driver waits out a device gap the loop wakes up every pollerTick.
func pollLoop(ctx context.Context, sched scheduler, pollers []poller, interval time.Duration) error {
	round := func() {
		for _, p := range pollers {
			if err := p.poll(); err != nil {
				slog.Debug("skipping device", "device", p.name, "error", err)
			}
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	round()
	for {
		waiting := false
		for _, p := range pollers {
			if p.deferred != nil && p.deferred.Poll() {
				waiting = true
			}
		}
		if sched.Idle() {
			var wake <-chan time.Time
			if waiting {
				wake = time.After(pollerTick)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				round()
			case <-wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			round()
		default:
		}
		sched.Run()
		runtime.Gosched()
	}
}
