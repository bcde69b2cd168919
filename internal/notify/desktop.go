package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/dionysus/internal/model"
)

const (
	notificationsBusName = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsBusName + ".Notify"

	appName = "dionysus"
)

// Urgency levels of the freedesktop notification protocol.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Notification holds the arguments of an org.freedesktop.Notifications
// Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Urgency returns the urgency hint, UrgencyNormal if absent.
func (n *Notification) Urgency() byte {
	if v, ok := n.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return b
		}
	}
	return UrgencyNormal
}

// Sender delivers a notification and returns the server-assigned id.
type Sender interface {
	Send(n *Notification) (uint32, error)
}

// BusSender calls the notification server on the session bus.
type BusSender struct {
	conn *dbus.Conn
}

// NewBusSender connects to the session bus.
func NewBusSender() (*BusSender, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &BusSender{conn: conn}, nil
}

// Send implements Sender.
func (b *BusSender) Send(n *Notification) (uint32, error) {
	actions := n.Actions
	if actions == nil {
		actions = []string{}
	}
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	obj := b.conn.Object(notificationsBusName, notificationsPath)
	call := obj.Call(notifyMethod, 0,
		n.AppName, n.ReplacesID, n.AppIcon, n.Summary, n.Body, actions, hints, n.ExpireTimeout)
	if call.Err != nil {
		return 0, fmt.Errorf("notify call failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to read notification id: %w", err)
	}
	return id, nil
}

// Close closes the bus connection.
func (b *BusSender) Close() error {
	return b.conn.Close()
}

// Desktop shows engine events as desktop notifications. The same kind and
// title is not repeated within the minimum interval.
type Desktop struct {
	mu     sync.Mutex
	logger *slog.Logger
	sender Sender

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration
	now            func() time.Time
}

// NewDesktop creates a desktop sink.
func NewDesktop(sender Sender, minInterval time.Duration, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{
		logger:         logger,
		sender:         sender,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    minInterval,
		now:            time.Now,
	}
}

// Notify implements Sink.
func (d *Desktop) Notify(ev model.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := ev.Kind.String() + "/" + ev.Title
	now := d.now()
	if last, ok := d.lastNotifyTime[key]; ok && now.Sub(last) < d.minInterval {
		d.logger.Debug("desktop notification rate-limited", "key", key)
		return
	}
	d.lastNotifyTime[key] = now

	n := toNotification(ev)
	if _, err := d.sender.Send(n); err != nil {
		d.logger.Warn("failed to send desktop notification", "error", err)
	}
}

func toNotification(ev model.Event) *Notification {
	n := &Notification{
		AppName: appName,
		Summary: ev.Title,
		Body:    ev.Message,
		Hints: map[string]dbus.Variant{
			"category":      dbus.MakeVariant("device"),
			"desktop-entry": dbus.MakeVariant(appName),
		},
		ExpireTimeout: -1,
	}

	switch ev.Severity() {
	case model.SeverityError:
		n.AppIcon = "dialog-error"
		n.Hints["urgency"] = dbus.MakeVariant(UrgencyCritical)
		n.ExpireTimeout = 0
	case model.SeverityWarning:
		n.AppIcon = "dialog-warning"
		n.Hints["urgency"] = dbus.MakeVariant(UrgencyNormal)
		n.Hints["transient"] = dbus.MakeVariant(true)
		n.ExpireTimeout = 5000
	}
	return n
}
