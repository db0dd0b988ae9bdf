package jobs

import (
	"context"
	"errors"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// LogJob writes one log line per execution. Useful as a heartbeat and for
// exercising schedules without side effects.
//
// Data keys:
//
//	message - the line to log (default "tick")
//	fail    - "always" makes every run return an error, for drills
type LogJob struct {
	message string
	fail    bool
	log     logx.Logger
}

func NewLogJob(detail *engine.JobDetail, log logx.Logger) (engine.Job, error) {
	return &LogJob{
		message: dataString(detail.Data, "message", "tick"),
		fail:    dataString(detail.Data, "fail", "") == "always",
		log:     log,
	}, nil
}

func (j *LogJob) Execute(ctx context.Context, ec *engine.ExecutionContext) error {
	j.log.Info("logjob.tick",
		logx.String("message", j.message),
		logx.Int("refire", ec.RefireCount()))
	if j.fail {
		return engine.NewJobError(errors.New("configured to fail"))
	}
	return nil
}
