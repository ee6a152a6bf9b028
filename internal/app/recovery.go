package app

import (
	"context"
	"time"

	"github.com/petems/interview-capture/internal/audio"
	"github.com/petems/interview-capture/internal/recovery"
	"github.com/petems/interview-capture/internal/session"
)

// monitor consumes the events of one capture process until it exits.
// Events from a process the session no longer owns are ignored.
func (a *App) monitor(r *run, proc audio.Process) {
	defer r.wg.Done()
	log := r.log.With().Int("pid", proc.Pid()).Logger()

	for ev := range proc.Events() {
		switch ev.Kind {
		case audio.EventDiagnostic:
			kind := recovery.ClassifyDiagnostic(ev.Line)
			if kind == recovery.KindNone {
				log.Trace().Str("line", ev.Line).Msg("ffmpeg")
				continue
			}
			log.Warn().Str("line", ev.Line).Stringer("kind", kind).Msg("Capture diagnostic")
			a.handleFailure(r, proc, a.policy.ForDiagnostic(kind))

		case audio.EventExit:
			if ev.Killed || !r.sess.Owns(proc) {
				log.Debug().Int("code", ev.ExitCode).Bool("killed", ev.Killed).Msg("Capture process exited")
				continue
			}
			if ev.ExitCode == 0 {
				if r.sess.Release(proc, session.StateIdle) {
					log.Warn().Msg("Capture process ended on its own")
				}
				continue
			}
			log.Warn().Int("code", ev.ExitCode).Msg("Capture process exited unexpectedly")
			a.handleFailure(r, proc, a.policy.ForExit(ev.ExitCode))

		case audio.EventError:
			log.Warn().Err(ev.Err).Msg("Capture process error")
			a.handleFailure(r, proc, a.policy.ForError(ev.Err))
		}
	}
}

// handleFailure applies the recovery action for a failure of proc.
func (a *App) handleFailure(r *run, proc audio.Process, action recovery.Action) {
	sess := r.sess
	if !sess.Owns(proc) || !sess.IsActive() {
		return
	}

	if action.Kind == recovery.KindDeviceNotFound {
		a.reportMissingDevice(r)
		sess.DisableAutoRestart()
		return
	}

	if action.Restart && !sess.AutoRestart() {
		action.Restart = false
		action.Fatal = true
		action.Reason += "; automatic restart disabled"
	}
	action = a.policy.Allow(action, sess.Restarts())

	switch {
	case action.Fatal:
		a.fail(r, proc, action)
	case action.Restart:
		if !r.beginRecovery() {
			r.log.Debug().Str("reason", action.Reason).Msg("Recovery already pending")
			return
		}
		sess.SetState(session.StateRecovering)
		r.log.Warn().
			Str("reason", action.Reason).
			Dur("stop_delay", action.StopDelay).
			Dur("restart_delay", action.RestartDelay).
			Msg("Scheduling capture restart")
		r.wg.Add(1)
		go a.restart(r, proc, action)
	}
}

// fail marks the session as needing a manual restart.
func (a *App) fail(r *run, proc audio.Process, action recovery.Action) {
	if !r.sess.Release(proc, session.StateFailed) {
		return
	}
	r.log.Error().Str("reason", action.Reason).Msg("Capture failed, manual restart required")

	select {
	case <-proc.Done():
	default:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := proc.Terminate(a.cfg.Recovery.TerminateGrace.Duration); err != nil {
				r.log.Warn().Err(err).Msg("Terminate failed capture")
			}
		}()
	}
}

// restart replaces proc with a fresh capture process for the same source.
// Transient spawn errors are retried within the restart budget; it gives up
// if the session stops meanwhile.
func (a *App) restart(r *run, proc audio.Process, action recovery.Action) {
	defer r.wg.Done()
	defer r.endRecovery()
	sess := r.sess

	if !sleepCtx(r.ctx, action.StopDelay) {
		return
	}

	unlock, err := a.locks.Lock(r.ctx, sess.ID)
	if err != nil {
		return
	}
	if !sess.Release(proc, session.StateRecovering) {
		unlock()
		return
	}
	r.stopScheduler()
	if err := proc.Terminate(a.cfg.Recovery.TerminateGrace.Duration); err != nil {
		r.log.Warn().Err(err).Msg("Terminate capture before restart")
	}
	a.files.Discard(proc.OutputPath())
	unlock()

	delay := action.RestartDelay
	for {
		if !sleepCtx(r.ctx, delay) {
			return
		}
		next, retry := a.respawn(r)
		if !retry {
			return
		}
		delay = next
	}
}

// respawn makes one restart attempt. It reports whether another attempt
// should follow and after what delay.
func (a *App) respawn(r *run) (time.Duration, bool) {
	sess := r.sess
	unlock, err := a.locks.Lock(r.ctx, sess.ID)
	if err != nil {
		return 0, false
	}
	defer unlock()
	if !a.sessions.Holds(sess) || sess.State() != session.StateRecovering {
		return 0, false
	}

	sess.CountRestart()
	err = a.spawn(r)
	if err == nil {
		r.log.Info().Int("restarts", sess.Restarts()).Msg("Capture restarted")
		return 0, false
	}

	action := a.policy.Allow(a.policy.ForError(err), sess.Restarts())
	if action.Restart {
		r.log.Warn().Err(err).Dur("restart_delay", action.RestartDelay).Msg("Capture restart failed, retrying")
		return action.RestartDelay, true
	}
	sess.SetState(session.StateFailed)
	r.log.Error().Err(err).Str("reason", action.Reason).Msg("Capture restart failed, manual restart required")
	return 0, false
}

// reportMissingDevice logs the devices that are available instead.
func (a *App) reportMissingDevice(r *run) {
	dev, err := a.devices.Lookup(r.sess.Source)
	if err != nil {
		return
	}
	evt := r.log.Error().Str("format", dev.Format).Str("input", dev.Input)
	if dev.Virtual {
		evt = evt.Bool("virtual", true).Str("hint", "virtual audio device may not be installed")
	}
	evt.Msg("Capture device not found, automatic restart disabled")

	if a.lister == nil {
		return
	}
	devices, err := a.lister.ListDevices()
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to list audio devices")
		return
	}
	for _, d := range devices {
		r.log.Info().Str("id", d.ID).Str("name", d.Name).Bool("default", d.Default).Msg("Available input device")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
