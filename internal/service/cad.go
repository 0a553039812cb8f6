package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
)

// JobEvents is the completion flag a CAD automation backend toggles from
// its begin/end callbacks. The converter polls it because the automation
// reports completion asynchronously, after SaveAs has already returned.
type JobEvents struct {
	completed atomic.Bool
}

func (e *JobEvents) JobBegan() { e.completed.Store(false) }
func (e *JobEvents) JobEnded() { e.completed.Store(true) }

func (e *JobEvents) Completed() bool { return e.completed.Load() }

// DefaultCADTimeout is the hard cap on waiting for the CAD application
// to report completion
const DefaultCADTimeout = 300 * time.Second

// CADConverter drives the single-instance CAD automation application.
// Only one CAD conversion runs system-wide at any time.
type CADConverter struct {
	Single  *SingleInstance
	Events  *JobEvents
	Timeout time.Duration
	Poll    time.Duration

	enabled bool
}

func NewCADConverter(single *SingleInstance, events *JobEvents, enabled bool) *CADConverter {
	return &CADConverter{
		Single:  single,
		Events:  events,
		Timeout: DefaultCADTimeout,
		Poll:    500 * time.Millisecond,
		enabled: enabled,
	}
}

func (c *CADConverter) Name() string         { return "cad" }
func (c *CADConverter) Extensions() []string { return []string{"dwg", "dxf", "dwt"} }

func (c *CADConverter) Available() bool { return c.enabled }

func (c *CADConverter) Convert(ctx context.Context, src, dst string) error {
	inst, err := c.Single.Lease(ctx)
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if ok {
			c.Single.Release()
		} else {
			c.Single.Retire()
		}
	}()

	c.Events.JobBegan()

	if err := inst.Open(src); err != nil {
		return err
	}
	if err := inst.SaveAs(dst, strings.TrimPrefix(filepath.Ext(dst), ".")); err != nil {
		return err
	}
	if err := inst.Close(); err != nil {
		return err
	}

	if err := c.waitCompletion(ctx); err != nil {
		return err
	}

	ok = true
	return nil
}

// waitCompletion polls the completion flag with a bounded wait instead
// of blocking on the automation forever
func (c *CADConverter) waitCompletion(ctx context.Context) error {
	deadline := time.NewTimer(c.Timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.Poll)
	defer tick.Stop()

	for {
		if c.Events.Completed() {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return apperr.Newf(apperr.KindResourceExhausted, "CAD conversion timed out after %s", c.Timeout)
		case <-ctx.Done():
			return apperr.Wrap(apperr.KindResourceExhausted, "CAD conversion canceled", ctx.Err())
		}
	}
}
