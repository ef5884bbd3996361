package tasks

import (
	"context"

	"github.com/conneroisu/assetpipe/internal/metrics"
)

// ReloadTaskName identifies the reload notifier.
const ReloadTaskName = "reload"

// ReloadTask asks connected browsers for a full page reload.
type ReloadTask struct {
	notifier Notifier
	recorder metrics.Recorder
}

// NewReloadTask creates the reload notifier.
func NewReloadTask(notifier Notifier, recorder metrics.Recorder) *ReloadTask {
	return &ReloadTask{notifier: notifier, recorder: recorder}
}

func (t *ReloadTask) Name() string   { return ReloadTaskName }
func (t *ReloadTask) Policy() Policy { return Propagate }

func (t *ReloadTask) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.notifier.FullReload()
	t.recorder.IncReload(metrics.ReloadFull)
	return nil
}
