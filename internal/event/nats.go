package event

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsSink forwards events as JSON to <prefix>.<type> subjects.
type NatsSink struct {
	conn   natsPublisher
	prefix string
}

func NewNatsSink(conn natsPublisher, prefix string) *NatsSink {
	return &NatsSink{conn: conn, prefix: prefix}
}

func ConnectNats(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("ngguard"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithField("component", "nats").WithField("error", err.Error()).Warn("disconnected")
			}
		}),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "cant connect to nats")
	}
	return conn, nil
}

func (s *NatsSink) Subject(e Event) string {
	return s.prefix + "." + e.Type
}

func (s *NatsSink) Handle(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.WithField("component", "nats").WithField("error", err.Error()).Error("cant encode event")
		return
	}
	if err := s.conn.Publish(s.Subject(e), data); err != nil {
		log.WithField("component", "nats").WithField("error", err.Error()).Warn("cant publish event")
	}
}
