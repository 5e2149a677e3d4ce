package reactor

import (
	"sync/atomic"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/logging"
)

// Reactor is the config.Component wrapper around a Table: Start launches the
// pump goroutine, Stop raises the shutdown flag and waits for DoSelect to
// report Shutdown.
type Reactor struct {
	log   logging.FuncLog
	table *Table

	running atomic.Bool
	stopped chan struct{}
}

// NewReactor constructs a Reactor. Call Init before Start, matching every
// other config.Component in this tree.
func NewReactor() *Reactor {
	return &Reactor{}
}

func (r *Reactor) Type() string { return "reactor" }

func (r *Reactor) Init(log logging.FuncLog) { r.log = log }

func (r *Reactor) Dependencies() []string { return nil }

func (r *Reactor) Start() errs.Error {
	t, err := NewTable(r.log)
	if err != nil {
		return err
	}
	r.table = t
	r.stopped = make(chan struct{})
	r.running.Store(true)

	go func() {
		defer close(r.stopped)
		defer r.running.Store(false)
		for {
			switch r.table.DoSelect(defaultPollMsec) {
			case Shutdown:
				_ = r.table.CloseBackend()
				return
			case CommError:
				if r.log != nil {
					r.log().Entry(logging.ErrorLevel, "reactor: backend error, worker exiting")
				}
				return
			}
		}
	}()
	return nil
}

func (r *Reactor) Reload() errs.Error { return nil }

func (r *Reactor) Stop() {
	if r.table == nil {
		return
	}
	r.table.RequestShutdown()
	<-r.stopped
}

func (r *Reactor) IsStarted() bool { return r.table != nil }

func (r *Reactor) IsRunning() bool { return r.running.Load() }

// Table exposes the underlying descriptor table to callers that need to
// Open/arm descriptors directly (the HTTP and FTP state machines).
func (r *Reactor) Table() *Table { return r.table }
