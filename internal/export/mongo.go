package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/pkg/models"
)

var invalidCollectionChars = regexp.MustCompile(`[^a-z0-9_]`)

// MongoConfig configures the MongoDB sink.
type MongoConfig struct {
	URI              string
	Database         string
	CollectionPrefix string
	Timeout          time.Duration
	MaxPoolSize      int
	TTLDays          int
	// X509 authenticates with the client certificate of the TLS config.
	X509 bool
}

// MongoSink writes records into one collection per source file.
type MongoSink struct {
	client           *mongo.Client
	database         *mongo.Database
	collectionPrefix string
	logger           *zap.Logger
	ttlDays          int

	mu      sync.Mutex
	indexed map[string]bool
}

// NewMongoSink connects to MongoDB. tlsConfig may be nil.
func NewMongoSink(ctx context.Context, cfg MongoConfig, tlsConfig *tls.Config, logger *zap.Logger) (*MongoSink, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Build connection options
	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
		if cfg.X509 {
			clientOpts.SetAuth(options.Credential{AuthMechanism: "MONGODB-X509"})
		}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", cfg.Database),
		zap.Int("max_pool_size", cfg.MaxPoolSize))

	return &MongoSink{
		client:           client,
		database:         client.Database(cfg.Database),
		collectionPrefix: cfg.CollectionPrefix,
		logger:           logger,
		ttlDays:          cfg.TTLDays,
		indexed:          make(map[string]bool),
	}, nil
}

// WriteBatch inserts a batch of records
func (s *MongoSink) WriteBatch(ctx context.Context, batch models.RecordBatch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	collName := CollectionName(s.collectionPrefix, batch.Source)
	collection := s.database.Collection(collName)

	if err := s.ensureIndexes(ctx, collName, collection); err != nil {
		// Don't fail the insert if index creation fails
		s.logger.Error("Failed to ensure indexes", zap.Error(err), zap.String("collection", collName))
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(batch.Records))
	for i, rec := range batch.Records {
		docs[i] = NewDocument(rec, batch.Source, batch.LoadID, now)
	}

	result, err := collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		// A retried batch may already be partly stored
		if mongo.IsDuplicateKeyError(err) {
			s.logger.Warn("Duplicate key error, some documents already exist",
				zap.String("collection", collName),
				zap.Int("batch_size", len(batch.Records)))
			return nil
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	s.logger.Info("Batch inserted",
		zap.String("collection", collName),
		zap.Int("inserted", len(result.InsertedIDs)),
		zap.String("load_id", batch.LoadID))
	return nil
}

// ensureIndexes creates the indexes of a collection once per sink
func (s *MongoSink) ensureIndexes(ctx context.Context, name string, collection *mongo.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed[name] {
		return nil
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "load_id", Value: 1}, {Key: "session", Value: 1}, {Key: "number", Value: 1}},
			Options: options.Index().SetName("load_session_number"),
		},
		{
			Keys:    bson.D{{Key: "time", Value: -1}},
			Options: options.Index().SetName("time_desc"),
		},
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "time", Value: -1}},
			Options: options.Index().SetName("thread_time"),
		},
	}

	if s.ttlDays > 0 {
		ttlSeconds := int32(s.ttlDays * 24 * 60 * 60)
		indexModels = append(indexModels, mongo.IndexModel{
			Keys: bson.D{{Key: "exported_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_index").
				SetExpireAfterSeconds(ttlSeconds),
		})
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	s.indexed[name] = true
	return nil
}

// Close closes the MongoDB connection
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CollectionName derives a valid collection name from a source path.
func CollectionName(prefix, source string) string {
	name := strings.ToLower(filepath.Base(source))
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = invalidCollectionChars.ReplaceAllString(name, "_")
	if name == "" || name == "_" {
		name = "trace"
	}
	return prefix + name
}
