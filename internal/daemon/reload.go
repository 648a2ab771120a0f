package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"proctor/internal/logging"
	"proctor/internal/remediation"
	"proctor/internal/violation"
)

// AckResult reports how a user acknowledgement was handled.
type AckResult struct {
	Kind   violation.Kind   `json:"kind"`
	Action violation.Action `json:"action"`
	Seq    int64            `json:"seq"`
	// Stale is true when the acknowledged prompt is no longer the active
	// one. No handler runs for a stale acknowledgement.
	Stale        bool `json:"stale"`
	Deduplicated bool `json:"deduplicated"`
}

// Acknowledge handles a click on the prompt button of kind. None acknowledges
// whatever is active. A non-zero seq names the prompt instance that was
// clicked (ActiveView.Seq); the click is stale once a different prompt has
// replaced it, even one of the same kind in a later session. Zero answers
// whichever prompt of kind is open.
func (d *Daemon) Acknowledge(ctx context.Context, kind violation.Kind, seq int64) (AckResult, error) {
	if err := d.ensureRunning(); err != nil {
		return AckResult{}, err
	}
	// Flush queued updates so the check sees every report made before the click.
	if err := d.monitor.Evaluate(ctx); err != nil {
		return AckResult{}, fmt.Errorf("acknowledge: %w", err)
	}
	current := d.monitor.State().Active
	active := violation.KindOf(current)
	if kind == violation.None {
		kind = active
	}
	result := AckResult{Kind: kind, Action: kind.Action(), Seq: seq}
	if current != nil && seq == 0 {
		result.Seq = current.Seq
	}
	if kind == violation.None || kind != active || (seq != 0 && seq != current.Seq) {
		result.Stale = true
		d.logger.Info("stale acknowledgement ignored",
			logging.String(logging.FieldViolationKind, kind.String()),
			logging.Int64("seq", seq),
			logging.String("active", active.String()),
			logging.String(logging.FieldEventType, "ack_stale"),
		)
		return result, nil
	}

	outcome, err := d.dispatcher.RemediatePrompt(ctx, kind, result.Seq)
	if err != nil {
		return result, err
	}
	result.Action = outcome.Action
	result.Deduplicated = outcome.Deduplicated
	result.Stale = outcome.Stale
	return result, nil
}

// Reload performs a hard reload: it runs the configured reload command,
// resets every signal to Unset, starts a new session, asks the host to reload,
// and brings the sources back up. The audit log is kept.
func (d *Daemon) Reload(ctx context.Context) error {
	return d.reload(ctx, 0)
}

// reload refuses with remediation.ErrPromptClosed when seq is set and no
// longer names the active prompt, as after an earlier reload has finished.
func (d *Daemon) reload(ctx context.Context, seq int64) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if err := d.ensureRunning(); err != nil {
		return err
	}
	if seq != 0 {
		if err := d.monitor.Sync(ctx); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		if active := d.monitor.State().Active; active == nil || active.Seq != seq {
			return fmt.Errorf("reload for prompt #%d: %w", seq, remediation.ErrPromptClosed)
		}
	}
	if err := d.runReloadCommand(ctx); err != nil {
		logging.WarnWithContext(d.logger, "reload command failed", "reload_command_failed",
			logging.String("command", d.cfg.Remediation.ReloadCommand),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check remediation.reload_command"),
			logging.String(logging.FieldImpact, "session was not reloaded; the reload button stays active"),
		)
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sourceStopTimeout)
	d.stopSources(stopCtx)
	cancel()

	oldID := d.SessionID()
	newID := uuid.NewString()
	if err := d.monitor.SetSession(ctx, newID); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	d.sessionMu.Lock()
	d.sessionID = newID
	d.sessionMu.Unlock()

	req, _ := d.requests.Post(violation.ActionHardReload, "")
	if err := d.startSources(d.ctx); err != nil {
		return fmt.Errorf("restart sources: %w", err)
	}
	d.dispatcher.Rearm()

	d.logger.Info("session reloaded",
		logging.String("previous_session", oldID),
		logging.String(logging.FieldSessionID, newID),
		logging.String(logging.FieldRequestID, req.ID),
		logging.String(logging.FieldEventType, "session_reloaded"),
	)

	runCtx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timeout := time.Duration(d.cfg.Notifications.RequestTimeout)*time.Second + notifyTimeoutGrace
		notifyCtx, cancel := context.WithTimeout(runCtx, timeout)
		defer cancel()
		if err := d.notifier.NotifySessionReloaded(notifyCtx, oldID, newID); err != nil && runCtx.Err() == nil {
			logging.WarnWithContext(d.logger, "reload notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "supervisor was not told about the reload"),
			)
		}
	}()
	return nil
}

func (d *Daemon) runReloadCommand(ctx context.Context) error {
	command := strings.TrimSpace(d.cfg.Remediation.ReloadCommand)
	if command == "" {
		return nil
	}
	cmdCtx, cancel := context.WithTimeout(ctx, d.cfg.ReloadTimeoutDuration())
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("reload command: %w: %s", err, detail)
		}
		return fmt.Errorf("reload command: %w", err)
	}
	d.logger.Debug("reload command finished", logging.String("command", command))
	return nil
}

// ReloadLatched reports whether a hard reload has been requested and not yet completed.
func (d *Daemon) ReloadLatched() bool {
	return d.dispatcher.Latched()
}
