package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// MongoConfig holds connection parameters for the Mongo store.
type MongoConfig struct {
	// Host is a hostname, or a full mongodb:// or mongodb+srv:// URI, in
	// which case Port is ignored.
	Host           string
	Port           int
	Username       string
	Password       string
	AuthSource     string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// URI returns the connection string without credentials.
func (c MongoConfig) URI() string {
	if strings.HasPrefix(c.Host, "mongodb://") || strings.HasPrefix(c.Host, "mongodb+srv://") {
		return c.Host
	}
	port := c.Port
	if port == 0 {
		port = 27017
	}
	return "mongodb://" + net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Mongo is a Store backed by a MongoDB collection. It is the production
// backend; the collection is typically sharded on the hashed _id.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

// OpenMongo connects to MongoDB and verifies the connection with a ping
// against the primary. Connection and authentication failures surface here.
func OpenMongo(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*Mongo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("mongo store: host must not be empty")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo store: database and collection must not be empty")
	}

	opts := options.Client().ApplyURI(cfg.URI())
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo store: connecting: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo store: ping: %w", err)
	}

	logger.Info("mongo store connected",
		"uri", cfg.URI(),
		"database", cfg.Database,
		"collection", cfg.Collection,
	)
	return &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger,
	}, nil
}

// Find implements Store.
func (m *Mongo) Find(ctx context.Context, f Filter) (Cursor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	query := bson.M{
		"seq":   f.SequenceAccession,
		"study": bson.M{"$in": f.Studies},
	}
	cur, err := m.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mongo store: find: %w", err)
	}
	return &mongoCursor{cur: cur}, nil
}

// InsertMany implements Store with one unordered bulk write. Per-document
// failures such as duplicate keys are logged and excluded from the count.
func (m *Mongo) InsertMany(ctx context.Context, records []*model.VariantRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, len(records))
	for i, r := range records {
		models[i] = mongo.NewInsertOneModel().SetDocument(r)
	}
	res, err := m.bulkWrite(ctx, "insert", models)
	if err != nil {
		return 0, err
	}
	return int(res.InsertedCount), nil
}

// DeleteMany implements Store with one unordered bulk write.
func (m *Mongo) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, len(ids))
	for i, id := range ids {
		models[i] = mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id})
	}
	res, err := m.bulkWrite(ctx, "delete", models)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// bulkWrite runs an unordered bulk write. A BulkWriteException that only
// carries write errors is a partial success: the result counts what was
// applied and the error is swallowed.
func (m *Mongo) bulkWrite(ctx context.Context, op string, models []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	res, err := m.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return res, nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError == nil && res != nil {
		first := ""
		if len(bwe.WriteErrors) > 0 {
			first = bwe.WriteErrors[0].Message
		}
		m.logger.Warn("bulk write partially applied",
			"op", op,
			"requested", len(models),
			"failed", len(bwe.WriteErrors),
			"first_error", first,
		)
		return res, nil
	}
	return nil, fmt.Errorf("mongo store: bulk %s: %w", op, err)
}

// Close implements Store.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo store: disconnecting: %w", err)
	}
	return nil
}

type mongoCursor struct {
	cur *mongo.Cursor
	rec *model.VariantRecord
	err error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	c.rec = nil
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var rec model.VariantRecord
	if err := c.cur.Decode(&rec); err != nil {
		c.err = fmt.Errorf("mongo store: decoding record: %w", err)
		return false
	}
	c.rec = &rec
	return true
}

func (c *mongoCursor) Record() *model.VariantRecord { return c.rec }

func (c *mongoCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}
