package service

import (
	"github.com/rs/zerolog"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// Worker turns committed events into notifications.
type Worker struct {
	JobChan  <-chan model.EventEnvelope
	SendFunc func(env model.EventEnvelope, msg string) bool
	Log      zerolog.Logger

	Sent   int
	Failed int
}

// Constructor
func NewWorker(jobChan <-chan model.EventEnvelope, sendFunc func(env model.EventEnvelope, msg string) bool, log zerolog.Logger) *Worker {
	return &Worker{
		JobChan:  jobChan,
		SendFunc: sendFunc,
		Log:      log,
	}
}

// Start processes envelopes until JobChan is closed. Failed sends are
// counted and logged, never retried.
func (w *Worker) Start() {
	for env := range w.JobChan {
		msg, err := RenderNotification(env)
		if err != nil {
			w.Log.Warn().Err(err).Uint64("seq", env.Seq).Msg("cannot render notification")
			w.Failed++
			continue
		}

		if w.SendFunc(env, msg) {
			w.Sent++
		} else {
			w.Failed++
			w.Log.Warn().Str("event", env.Name).Uint64("seq", env.Seq).Msg("notification not sent")
		}
	}
}
