package database

import (
	"context"
	"crypto/tls"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ReportsCollection   = "reports"
	UsersCollection     = "users"
	MessagesCollection  = "messages"
	UserFlagsCollection = "user_flags"
)

// Connect opens the single client shared by every service and pings it.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)

	// Atlas occasionally fails TLS negotiation unless TLS 1.2 is forced.
	if strings.HasPrefix(uri, "mongodb+srv://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	log.Printf("MongoDB connected: db=%s", dbName)
	return client, client.Database(dbName), nil
}
