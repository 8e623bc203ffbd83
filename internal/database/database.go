// Package database provides MongoDB connection management.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect dials MongoDB and verifies the connection, retrying up to 5 times
// to accommodate containers starting up. The returned cleanup disconnects
// the client.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(), error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(20)

	var client *mongo.Client
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		client, err = mongo.Connect(ctx, opts)
		if err == nil {
			if pingErr := client.Ping(ctx, readpref.Primary()); pingErr == nil {
				break
			} else {
				err = pingErr
			}
			_ = client.Disconnect(ctx)
		}
		if attempt < 5 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}
	return client.Database(dbName), cleanup, nil
}
