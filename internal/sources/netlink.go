package sources

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"proctor/internal/logging"
)

// hotplugWatcher listens for udev netlink drm events and calls trigger for
// each connector change so the display count is refreshed without waiting for
// the next poll.
type hotplugWatcher struct {
	logger  *slog.Logger
	trigger func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newHotplugWatcher(logger *slog.Logger, trigger func()) *hotplugWatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &hotplugWatcher{logger: logger, trigger: trigger}
}

// Start connects to the udev netlink socket. Failure is logged and leaves the
// caller on polling alone.
func (w *hotplugWatcher) Start(ctx context.Context) {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; display changes detected by polling only", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "display hotplug noticed only at the next poll"),
		)
		return
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	go w.loop(ctx, conn, w.quit)

	w.logger.Info("display hotplug watcher started",
		logging.String(logging.FieldEventType, "hotplug_watcher_started"),
	)
}

// Stop closes the netlink connection. It is safe on a nil or stopped watcher.
func (w *hotplugWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.quit)
	w.quit = nil
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

// Running reports whether the watcher is connected.
func (w *hotplugWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *hotplugWatcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, drmMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "display hotplug may be noticed late"),
			)
		}
	}
}

// drmMatcher matches connector hotplug events: SUBSYSTEM=drm, ACTION=change|add|remove.
func drmMatcher() netlink.Matcher {
	action := "change|add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "drm",
		},
	})
	return rules
}

func (w *hotplugWatcher) handleEvent(uevent netlink.UEvent) {
	w.logger.Debug("drm hotplug event",
		logging.String("action", string(uevent.Action)),
		logging.String("kobj", uevent.KObj),
		logging.String("hotplug", uevent.Env["HOTPLUG"]),
	)
	if w.trigger != nil {
		w.trigger()
	}
}
