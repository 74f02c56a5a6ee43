// Package bus mirrors session events onto NATS subjects.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/session"
)

// Publisher publishes session events as JSON on <prefix>.<event kind>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
}

// Connect dials the configured NATS servers.
func Connect(cfg config.BusConfig, log *zap.Logger) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	options := []nats.Option{
		nats.Name("mudra"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.Prefix, ".")
	if prefix == "" {
		prefix = "mudra.session"
	}

	log = log.Named("bus")
	log.Info("connected to NATS", zap.String("servers", url), zap.String("prefix", prefix))
	return &Publisher{conn: conn, prefix: prefix, log: log}, nil
}

// Subject returns the subject an event kind is published on.
func (p *Publisher) Subject(kind session.Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish sends one event.
func (p *Publisher) Publish(e session.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

// Attach publishes every event of s until the returned function is called.
// Publish failures are logged and never reach the session.
func (p *Publisher) Attach(s *session.Session) (detach func()) {
	return s.Subscribe(func(e session.Event) {
		if err := p.Publish(e); err != nil {
			p.log.Warn("failed to publish event", zap.String("kind", string(e.Kind)), zap.Error(err))
		}
	})
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.log.Info("closing NATS connection")
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
