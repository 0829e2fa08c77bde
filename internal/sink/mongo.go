package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"moviesims/internal/config"
	"moviesims/internal/logging"
	"moviesims/pkg/types"
)

var (
	// ErrMissingMongoURI means the Mongo sink was requested without a URI.
	ErrMissingMongoURI = errors.New("sink: missing MongoDB URI")
	// ErrMongoUnavailable is returned when every connection attempt failed.
	ErrMongoUnavailable = errors.New("sink: could not connect to MongoDB")
)

const (
	defaultMongoRetryInterval = 15 * time.Second
	mongoBatchSize            = 1000
)

// Mongo replaces the contents of one collection with the latest report.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// newMongoClient connects and pings once.
func newMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, ErrMissingMongoURI
	}

	opt := options.Client().ApplyURI(uri)
	// the stable server API is only needed for Atlas clusters
	if strings.HasPrefix(uri, "mongodb+srv://") {
		opt.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	}
	client, err := mongo.Connect(opt)
	if err != nil {
		return nil, fmt.Errorf("sink: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("sink: mongo ping: %w", err)
	}
	return client, nil
}

// ConnectMongo retries the connection every MongoInterval until it succeeds,
// MongoRetries attempts are used up (0 = unlimited) or ctx ends.
func ConnectMongo(ctx context.Context, cfg config.OutputConfig) (*Mongo, error) {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return nil, ErrMissingMongoURI
	}
	interval := cfg.MongoInterval.Std()
	if interval <= 0 {
		interval = defaultMongoRetryInterval
	}
	log := logging.WithPrefix("mongo")

	for attempt := 1; ; attempt++ {
		client, err := newMongoClient(ctx, cfg.MongoURI)
		if err == nil {
			if attempt > 1 {
				log.Info("connected", "attempts", attempt)
			}
			return &Mongo{
				client: client,
				coll:   client.Database(cfg.MongoDB).Collection(cfg.MongoColl),
			}, nil
		}

		log.Warn("connection attempt failed", "attempt", attempt, "err", err)
		if cfg.MongoRetries > 0 && attempt >= cfg.MongoRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrMongoUnavailable, attempt, err)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Mongo) Write(ctx context.Context, records []types.NamedSimilarity) error {
	if _, err := m.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("sink: clearing collection: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = bson.D{
			{Key: "rank", Value: i},
			{Key: "anchor", Value: r.Anchor},
			{Key: "neighbor", Value: r.Neighbor},
			{Key: "score", Value: r.Score},
			{Key: "coRatings", Value: r.CoRatings},
		}
	}

	start := time.Now()
	inserted := 0
	for i := 0; i < len(docs); i += mongoBatchSize {
		end := min(i+mongoBatchSize, len(docs))
		res, err := m.coll.InsertMany(ctx, docs[i:end], options.InsertMany().SetOrdered(true))
		if err != nil {
			return fmt.Errorf("sink: inserting batch %d-%d: %w", i, end, err)
		}
		inserted += len(res.InsertedIDs)
		logging.Debug("mongo batch inserted", "inserted", inserted, "total", len(docs))
	}
	logging.Info("report stored in mongo", "collection", m.coll.Name(), "docs", inserted, "took", time.Since(start))
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
