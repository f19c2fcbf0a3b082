package driver

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/errors"
	"github.com/xiaoli123/robomongo/util"
)

// Connector implements domain.Connector by dialing the server and
// verifying it answers a ping.
type Connector struct {
	logger *util.Logger
}

// NewConnector returns a connector that logs through logger.
func NewConnector(logger *util.Logger) *Connector {
	return &Connector{logger: logger}
}

// Connect dials the server described by settings and pings it.  The
// client is torn down before returning; the orchestration layer only
// needs to know whether the server is reachable — query traffic opens
// its own clients.
func (c *Connector) Connect(ctx context.Context, settings *config.ConnectionSettings) error {
	uri := BuildURI(settings)
	c.logger.Debug("driver: connecting to %s", settings.TargetLabel())

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return errors.Wrap("connect", settings.FullAddress(), err)
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap("ping", settings.FullAddress(), err)
	}

	c.logger.Verbose("driver: %s is reachable", settings.TargetLabel())
	return nil
}
