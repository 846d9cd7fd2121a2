package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"

	"shiftboard/store"
)

// NotifyChannel is the LISTEN/NOTIFY channel the migrations wire triggers
// to. Every insert/update/delete on the three tables produces one
// notification with a {"collection","action"} JSON payload.
const NotifyChannel = "shiftboard_changes"

const (
	listenerMinReconnect = time.Second
	listenerMaxReconnect = 30 * time.Second
	listenerPingInterval = 90 * time.Second
)

// OnReconnect registers fn to run whenever the change listener
// re-establishes its connection after an outage. The failover layer uses
// this to kick an outbox replay.
func (g *Gateway) OnReconnect(fn func()) {
	g.onReconnect = fn
}

type subscription struct {
	listener *pq.Listener
	done     chan struct{}
	once     sync.Once
}

// Unsubscribe releases the notification channel. Safe to call more than
// once.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.listener.Close()
	})
}

// SubscribeChanges opens a LISTEN connection and invokes fn for every
// change notification. Delivery is at-least-once: after a reconnect the
// listener fires a synthetic event so consumers reload rather than miss
// changes that happened during the outage.
func (g *Gateway) SubscribeChanges(ctx context.Context, fn func(store.ChangeEvent)) (store.Subscription, error) {
	const op = "SubscribeChanges"

	events := make(chan bool, 1)
	listener := pq.NewListener(g.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(event pq.ListenerEventType, err error) {
			switch event {
			case pq.ListenerEventReconnected:
				g.logger.Info("change listener reconnected")
				if g.onReconnect != nil {
					g.onReconnect()
				}
				select {
				case events <- true:
				default:
				}
			case pq.ListenerEventConnectionAttemptFailed:
				g.logger.WithError(err).Warn("change listener connection attempt failed")
			}
		})

	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, classify(op, err)
	}

	sub := &subscription{listener: listener, done: make(chan struct{})}
	go sub.loop(fn, events)
	return sub, nil
}

func (s *subscription) loop(fn func(store.ChangeEvent), reconnected <-chan bool) {
	for {
		select {
		case <-s.done:
			return
		case notification := <-s.listener.Notify:
			if notification == nil {
				// Connection was lost; the reconnect event handles the reload.
				continue
			}
			fn(decodeNotification(notification.Extra))
		case <-reconnected:
			// Changes may have been missed during the outage; emit a
			// catch-all event so the consumer reloads everything.
			fn(store.ChangeEvent{Action: "RELOAD"})
		case <-time.After(listenerPingInterval):
			go func() {
				_ = s.listener.Ping()
			}()
		}
	}
}

func decodeNotification(payload string) store.ChangeEvent {
	var event store.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.Collection == "" {
		// Payload shape is not guaranteed; treat anything unreadable as a
		// generic change.
		return store.ChangeEvent{Action: "RELOAD"}
	}
	return event
}
