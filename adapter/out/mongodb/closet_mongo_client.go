// Package mongodb holds the raw email archive. Bodies are large and
// write-once, a poor fit for the relational store.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"closet_server/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client wraps the Mongo connection and database handle.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and pings.
func NewClient(ctx context.Context, url, dbName string) (*Client, error) {
	opts := options.Client().
		ApplyURI(url).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	logger.Info("[MongoDB] Connected to %s", dbName)
	return &Client{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

func (c *Client) Database() *mongo.Database {
	return c.database
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
