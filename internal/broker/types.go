package broker

import (
	"context"

	"hookgate/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.AlertEnvelope) error
	Close() error
}
