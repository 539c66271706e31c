package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Notifier accepts fire-and-forget notification events. Failures are logged
// and ignored; the core never depends on delivery.
type Notifier interface {
	PodLockedIn(podCode string, members []string)
	MilestoneReached(userID string, level int)
}

// NATSNotifier publishes notification events on NATS core subjects.
type NATSNotifier struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSNotifier connects to NATS and returns a notifier publishing under
// prefix (e.g. "lockin.notify").
func NewNATSNotifier(url, prefix string) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{nc: nc, subjectPrefix: prefix}, nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	n.nc.Close()
}

func (n *NATSNotifier) PodLockedIn(podCode string, members []string) {
	n.publish("pod.locked_in", map[string]any{
		"pod_code":  podCode,
		"members":   members,
		"locked_at": time.Now().UTC(),
	})
}

func (n *NATSNotifier) MilestoneReached(userID string, level int) {
	n.publish("progress.milestone", map[string]any{
		"user_id":    userID,
		"level":      level,
		"reached_at": time.Now().UTC(),
	})
}

func (n *NATSNotifier) publish(suffix string, payload map[string]any) {
	subject := fmt.Sprintf("%s.%s", n.subjectPrefix, suffix)
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal notification")
		return
	}
	if err := n.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("notification publish failed, dropping")
	}
}

// Nop discards all notifications. Used when NATS is not configured and in
// tests.
type Nop struct{}

func (Nop) PodLockedIn(string, []string) {}
func (Nop) MilestoneReached(string, int) {}
