package realtime

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Bridge shares fan-out frames between instances over a NATS subject.
type Bridge struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// ConnectBridge connects to url, subscribes hub to subject and installs the
// bridge as the hub's publisher.
func ConnectBridge(url, subject string, hub *Hub) (*Bridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("erp-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				hub.log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			hub.log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var out Outbound
		if err := json.Unmarshal(msg.Data, &out); err != nil {
			hub.log.Warn().Err(err).Msg("bad bridge message")
			return
		}
		hub.Deliver(out)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	b := &Bridge{nc: nc, sub: sub, subject: subject}
	hub.SetPublisher(b)
	hub.log.Info().Str("subject", subject).Msg("nats bridge ready")
	return b, nil
}

func (b *Bridge) Publish(msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	_ = b.nc.Drain()
}
