// Package mongodb implements store.Database on top of the official MongoDB driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/store"
)

// Config holds connection settings.
type Config struct {
	// URI is the MongoDB connection string.
	// Default: "mongodb://localhost"
	URI string

	// Port is appended to a single host without an explicit port, for
	// locally hosted instances. 0 leaves the URI untouched.
	Port int

	// Database is the logical database to use. Required.
	Database string

	// Timeout bounds every operation the client runs. 0 means no client-side timeout.
	Timeout time.Duration

	// Logger receives driver command logs. Nil disables driver logging.
	Logger *zap.Logger
}

// DefaultConfig returns defaults for a local instance.
func DefaultConfig() Config {
	return Config{
		URI:     "mongodb://localhost",
		Timeout: 10 * time.Second,
	}
}

func (c *Config) validate() error {
	if c.URI == "" {
		c.URI = "mongodb://localhost"
	}
	if c.Database == "" {
		return errors.New("mongodb: database name is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("mongodb: invalid port %d", c.Port)
	}
	return nil
}

// Database is a store.Database backed by a MongoDB database.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Database = (*Database)(nil)

// Connect opens a client and selects cfg.Database.
func Connect(ctx context.Context, cfg Config) (*Database, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(withPort(cfg.URI, cfg.Port))
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	if cfg.Logger != nil {
		opts.SetLoggerOptions(options.Logger().
			SetSink(NewLogSink(cfg.Logger)).
			SetComponentLevel(options.LogComponentCommand, options.LogLevelDebug))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	return NewFromClient(client, cfg.Database), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *mongo.Client, database string) *Database {
	return &Database{
		client: client,
		db:     client.Database(database),
	}
}

// Close disconnects the client.
func (d *Database) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Drop drops the whole logical database.
func (d *Database) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

// Collection returns a handle for the named collection.
func (d *Database) Collection(name string) store.Collection {
	return &Collection{coll: d.db.Collection(name)}
}

// Ping runs the "ping" command and reports whether the server answered ok.
func (d *Database) Ping(ctx context.Context) (bool, error) {
	var resp bson.M
	if err := d.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&resp); err != nil {
		return false, err
	}
	switch ok := nested.Normalize(resp["ok"]).(type) {
	case float64:
		return ok == 1, nil
	case int64:
		return ok == 1, nil
	}
	return false, nil
}

// withPort appends port to a single host that has none, mirroring the
// driver-level (uri, port) connect form.
func withPort(uri string, port int) string {
	if port == 0 || strings.HasPrefix(uri, "mongodb+srv://") {
		return uri
	}
	const scheme = "mongodb://"
	rest := strings.TrimPrefix(uri, scheme)

	hostEnd := strings.IndexAny(rest, "/?")
	if hostEnd < 0 {
		hostEnd = len(rest)
	}
	hosts, tail := rest[:hostEnd], rest[hostEnd:]

	userinfo := ""
	if at := strings.LastIndex(hosts, "@"); at >= 0 {
		userinfo, hosts = hosts[:at+1], hosts[at+1:]
	}
	if hosts == "" || strings.ContainsAny(hosts, ",:") {
		return scheme + rest
	}
	return scheme + userinfo + hosts + ":" + strconv.Itoa(port) + tail
}

// Collection is a store.Collection backed by a MongoDB collection.
type Collection struct {
	coll *mongo.Collection
}

func idFilter(id any) (bson.D, error) {
	enc, err := encodeValue(id)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: store.IDField, Value: enc}}, nil
}

func projection(field string) bson.D {
	if field == store.IDField {
		return bson.D{{Key: store.IDField, Value: 1}}
	}
	return bson.D{{Key: store.IDField, Value: 0}, {Key: field, Value: 1}}
}

// FindOne fetches one document, projecting to field when set.
func (c *Collection) FindOne(ctx context.Context, id any, field string) (store.Document, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if field != "" {
		opts.SetProjection(projection(field))
	}

	var raw bson.M
	err = c.coll.FindOne(ctx, filter, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc, _ := decodeValue(raw).(map[string]any)
	if doc == nil {
		doc = store.Document{}
	}
	return doc, nil
}

// InsertOne inserts doc.
func (c *Collection) InsertOne(ctx context.Context, doc store.Document) error {
	enc, err := encodeValue(doc)
	if err != nil {
		return err
	}
	_, err = c.coll.InsertOne(ctx, enc)
	return err
}

// UpdateOne maps u onto the matching update operator.
func (c *Collection) UpdateOne(ctx context.Context, id any, u store.Update) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}

	if u.Op == store.OpReplace {
		body, ok := nested.AsMap(u.Value)
		if !ok {
			return fmt.Errorf("%w: replacement must be a map, got %T", store.ErrInvalidArgument, u.Value)
		}
		body = nested.Copy(body)
		delete(body, store.IDField)
		enc, err := encodeValue(body)
		if err != nil {
			return err
		}
		_, err = c.coll.ReplaceOne(ctx, filter, enc)
		return err
	}

	var operator string
	value := u.Value
	switch u.Op {
	case store.OpSet:
		operator = "$set"
	case store.OpPush:
		operator = "$push"
	case store.OpPull:
		operator = "$pull"
	case store.OpUnset:
		operator, value = "$unset", ""
	default:
		return fmt.Errorf("%w: unknown update operator %s", store.ErrInvalidArgument, u.Op)
	}

	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	update := bson.D{{Key: operator, Value: bson.D{{Key: u.Field, Value: enc}}}}
	_, err = c.coll.UpdateOne(ctx, filter, update)
	return err
}

// DeleteOne deletes the document with the given id.
func (c *Collection) DeleteOne(ctx context.Context, id any) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	_, err = c.coll.DeleteOne(ctx, filter)
	return err
}

// Drop drops the collection.
func (c *Collection) Drop(ctx context.Context) error {
	return c.coll.Drop(ctx)
}

// encodeValue prepares a value for BSON. Integers that overflow int64 become
// Decimal128, which holds up to 34 digits exactly.
func encodeValue(v any) (any, error) {
	return encodeNormalized(nested.Normalize(v))
}

func encodeNormalized(v any) (any, error) {
	switch t := v.(type) {
	case *big.Int:
		d, ok := primitive.ParseDecimal128FromBigInt(t, 0)
		if !ok {
			return nil, fmt.Errorf("%w: integer %s does not fit in a Decimal128", store.ErrInvalidArgument, t)
		}
		return d, nil
	case map[string]any:
		out := make(bson.M, len(t))
		for k, e := range t {
			enc, err := encodeNormalized(e)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			enc, err := encodeNormalized(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	default:
		return t, nil
	}
}

// decodeValue converts driver types into plain maps, lists and int64s.
func decodeValue(v any) any {
	switch t := v.(type) {
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = decodeValue(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	case int32:
		return int64(t)
	case primitive.Decimal128:
		if n, exp, err := t.BigInt(); err == nil && exp == 0 {
			return nested.Normalize(n)
		}
		return t
	default:
		return t
	}
}
