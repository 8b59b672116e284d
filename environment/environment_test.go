package environment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/executor"
	"github.com/mklimuk/busq/sim"
)

func newScheduler(bus *sim.Bus) *busq.Scheduler[*executor.Polled] {
	return busq.New(executor.NewPolled(bus))
}

// drain runs the scheduler until the queue is empty.
func drain(t *testing.T, s *busq.Scheduler[*executor.Polled]) {
	t.Helper()
	for i := 0; !s.Idle(); i++ {
		require.Less(t, i, 10000, "scheduler did not drain")
		s.Run()
	}
}
