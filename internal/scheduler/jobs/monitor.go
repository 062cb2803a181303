package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/monitor"
	"github.com/wonny/vigil/internal/runlog"
)

// Runner executes the decision pipeline for one instrument.
type Runner interface {
	Execute(ctx context.Context, inst *instrument.Instrument, opts monitor.RunOptions) (*runlog.Record, error)
}

// MonitorJob is the recurring per-instrument check. One instance is
// registered per enabled instrument, firing at that instrument's own
// interval.
type MonitorJob struct {
	inst   *instrument.Instrument
	runner Runner
}

// NewMonitorJob creates a monitoring job for an instrument.
func NewMonitorJob(inst *instrument.Instrument, runner Runner) *MonitorJob {
	return &MonitorJob{
		inst:   inst,
		runner: runner,
	}
}

// Name returns the job name
func (j *MonitorJob) Name() string {
	return MonitorJobName(j.inst.Symbol)
}

// Schedule returns the cron schedule for this instrument's interval.
func (j *MonitorJob) Schedule() string {
	return fmt.Sprintf("@every %ds", j.inst.Interval)
}

// Run executes one monitoring pass.
func (j *MonitorJob) Run(ctx context.Context) error {
	_, err := j.runner.Execute(ctx, j.inst, monitor.RunOptions{})
	return err
}

// Instrument returns the instrument this job monitors.
func (j *MonitorJob) Instrument() *instrument.Instrument {
	return j.inst
}

// MonitorJobName returns the scheduler name used for a symbol's job.
func MonitorJobName(symbol string) string {
	return "monitor_" + symbol
}
