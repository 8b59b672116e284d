package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/adapter"
	"github.com/mklimuk/busq/busctx"
	"github.com/mklimuk/busq/config"
	"github.com/mklimuk/busq/executor"
	"github.com/mklimuk/busq/i2c"
)

// pollerTick is how long an idle bus sleeps while a driver waits out a
// device gap.
const pollerTick = time.Millisecond

// scheduler is what commands need from busq.Scheduler regardless of the
// executor type parameter.
type scheduler interface {
	busq.Submitter
	Run()
	Idle() bool
	Len() int
	WaitFinishContext(ctx context.Context, t *busq.Transaction) error
}

type session struct {
	sched   scheduler
	closers []func() error
}

// configFromFlags builds a bus configuration out of the global flags.
func configFromFlags(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	cfg.Adapter = c.String("adapter")
	cfg.Device = c.String("device")
	cfg.Bus = c.Int("bus")
	cfg.DeviceIndex = c.Int("index")
	cfg.Executor = c.String("executor")
	cfg.Speed = c.String("speed")
	cfg.Timeout = c.Duration("timeout")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	return busctx.SetVerbose(c.Context, c.Bool("verbose"))
}

func openSession(ctx context.Context, cfg *config.Config, opts ...busq.Option) (*session, error) {
	s := &session{}
	transport, err := s.openTransport(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	exOpts := []executor.Opt{
		executor.WithContext(ctx),
		executor.WithTimeout(cfg.Timeout),
		executor.WithLogger(slog.Default()),
	}
	switch cfg.Executor {
	case config.ExecutorAsync:
		ex := executor.NewAsync(transport, exOpts...)
		s.closers = append(s.closers, func() error {
			ex.Close()
			return nil
		})
		s.sched = busq.New(ex, opts...)
	default:
		s.sched = busq.New(executor.NewPolled(transport, exOpts...), opts...)
	}
	return s, nil
}

func (s *session) openTransport(cfg *config.Config) (busq.Transport, error) {
	switch cfg.Adapter {
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		s.closers = append(s.closers, bus.Close)
		f, err := cfg.Frequency()
		if err != nil {
			return nil, err
		}
		if f > 0 {
			if err := bus.SetSpeed(f); err != nil {
				return nil, fmt.Errorf("could not set bus speed: %w", err)
			}
		}
		return bus, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		s.closers = append(s.closers, npi.Finalize)
		bus := i2c.NewGobotBus(npi, cfg.Bus)
		s.closers = append(s.closers, bus.Close)
		return bus, nil
	case config.AdapterSim:
		return newSimBus(), nil
	default:
		mcp := adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.DeviceIndex))
		if err := mcp.Init(); err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return mcp, nil
	}
}

// await runs the scheduler until done is closed. pollers get a chance to
// submit their deferred phases on every tick.
func (s *session) await(ctx context.Context, done <-chan struct{}, pollers ...busq.Poller) error {
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("bus did not complete in time (%d queued): %w", s.sched.Len(), ctx.Err())
		default:
		}
		waiting := false
		for _, p := range pollers {
			if p.Poll() {
				waiting = true
			}
		}
		if waiting && s.sched.Idle() {
			time.Sleep(pollerTick)
			continue
		}
		s.sched.Run()
		runtime.Gosched()
	}
}

// close releases resources in reverse order of acquisition.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("error closing bus", "error", err)
		}
	}
	s.closers = nil
}

// withSession opens the bus described by the global flags and calls fn with
// a context bounded by --wait.
func withSession(c *cli.Context, fn func(ctx context.Context, s *session) error) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(commandContext(c), c.Duration("wait"))
	defer cancel()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

// parseAddress accepts hex with or without the 0x prefix.
func parseAddress(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("could not decode address %q: %w", s, err)
	}
	if v > executor.MaxAddress {
		return 0, fmt.Errorf("address %#x out of range", v)
	}
	return uint16(v), nil
}

// parseDeviceAddress is parseAddress limited to the 7-bit range the device
// drivers accept.
func parseDeviceAddress(s string) (byte, error) {
	addr, err := parseAddress(s)
	if err != nil {
		return 0, err
	}
	if addr > config.MaxDeviceAddress {
		return 0, fmt.Errorf("address %#x is not a 7-bit device address", addr)
	}
	return byte(addr), nil
}

func parseByte(s string) (byte, error) {
	data, err := parseHex(s)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("expected a single byte, got %d", len(data))
	}
	return data[0], nil
}

func parseHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not decode data: %w", err)
	}
	return data, nil
}
