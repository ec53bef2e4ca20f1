package schedule

import (
	"time"

	"github.com/go-kit/kit/log"
)

// Task runs a function on a fixed interval until stopped. Failed runs are
// logged and retried on the next tick.
type Task struct {
	every  time.Duration
	logger log.Logger
	name   string
	run    func() error
	stopc  chan chan struct{}
}

// New returns an unstarted Task.
func New(
	logger log.Logger,
	name string,
	every time.Duration,
	run func() error,
) *Task {
	return &Task{
		every: every,
		logger: log.With(
			logger,
			"every", every.String(),
			"task", name,
		),
		name:  name,
		run:   run,
		stopc: make(chan chan struct{}),
	}
}

// Start launches the interval loop. It must be called at most once.
func (t *Task) Start() {
	go t.loop()
}

// Stop terminates the interval loop and waits for an in-flight run to
// finish.
func (t *Task) Stop() {
	ackc := make(chan struct{})
	t.stopc <- ackc
	<-ackc
}

func (t *Task) loop() {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			begin := time.Now()

			if err := t.run(); err != nil {
				_ = t.logger.Log(
					"duration_ns", time.Since(begin).Nanoseconds(),
					"err", err,
					"lifecycle", "run",
				)

				continue
			}

			_ = t.logger.Log(
				"duration_ns", time.Since(begin).Nanoseconds(),
				"lifecycle", "run",
			)
		case ackc := <-t.stopc:
			close(ackc)
			return
		}
	}
}
