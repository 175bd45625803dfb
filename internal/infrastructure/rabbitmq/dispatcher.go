package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/internal/domain/notification"
)

const defaultPublishTimeout = 5 * time.Second

var ErrEmptyTopic = errors.New("topic is required")

// Publisher is satisfied by *helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, body any) error
}

// Dispatcher publishes events to a durable queue named after the topic.
// Publishing is detached from the caller's cancellation and bounded by Timeout.
type Dispatcher struct {
	Pub     Publisher
	Logger  *logrus.Logger
	Timeout time.Duration
}

func NewDispatcher(pub Publisher, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{Pub: pub, Logger: logger, Timeout: defaultPublishTimeout}
}

func (d *Dispatcher) Emit(ctx context.Context, topic string, payload any) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := d.Pub.PublishJSON(c, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if d.Logger != nil {
		d.Logger.WithField("topic", topic).Debug("event published")
	}
	return nil
}

var _ notification.Dispatcher = (*Dispatcher)(nil)
