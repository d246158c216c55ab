package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client wraps the MongoDB client together with the configured database name.
type Client struct {
	*mongo.Client
	dbName string
}

// Config defines the MongoDB connection settings.
type Config struct {
	URI      string        // connection URI, e.g. "mongodb://localhost:27017"
	Database string        // database name
	Timeout  time.Duration // connect/ping timeout
}

// NewClient connects to MongoDB and verifies the connection with a ping.
// The scheduler cannot operate without durable state, so callers should treat
// an error here as fatal to startup.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("MongoDB URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		Client: client,
		dbName: cfg.Database,
	}, nil
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Disconnect(ctx)
}

// Database returns a handle to the configured database.
func (c *Client) Database() *mongo.Database {
	if c.Client == nil {
		return nil
	}
	return c.Client.Database(c.dbName)
}

// Ping verifies the connection is still alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("MongoDB client is not initialized")
	}
	return c.Client.Ping(ctx, readpref.Primary())
}
