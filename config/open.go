package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/pathstore/cache"
	"github.com/jacentio/pathstore/store"
	storedynamo "github.com/jacentio/pathstore/store/dynamodb"
	"github.com/jacentio/pathstore/store/memory"
	"github.com/jacentio/pathstore/store/mongodb"
	"github.com/jacentio/pathstore/store/sqlite"
)

// Stack is an assembled accessor: the store, the optional cache in front of
// it, and the resources to release when done.
type Stack struct {
	// Accessor is the entry point: the cache when enabled, else the store.
	Accessor store.Accessor

	Store  *store.Store
	Cache  *cache.Cache
	Logger *slog.Logger

	closers []func(context.Context) error
}

// Close releases backend connections.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects the configured backend and builds the stack. Logs go to
// stderr.
func Open(ctx context.Context, f *File) (*Stack, error) {
	return OpenWithOutput(ctx, f, os.Stderr)
}

// OpenWithOutput is Open with an explicit log destination.
func OpenWithOutput(ctx context.Context, f *File, logOut io.Writer) (*Stack, error) {
	if f == nil {
		f = Default()
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, err
	}
	logger := NewLogger(f.Log.Level, f.Log.Format, logOut)
	stack := &Stack{Logger: logger}

	db, err := openDatabase(ctx, f, logOut, stack)
	if err != nil {
		_ = stack.Close(ctx)
		return nil, err
	}

	storeCfg := store.DefaultConfig()
	storeCfg.Logger = logger.With("component", "store", "backend", f.Backend)
	if f.Store != nil {
		storeCfg.FetchWholeDocument = f.Store.FetchWholeDocument
	}
	stack.Store = store.New(db, storeCfg)
	stack.Accessor = stack.Store

	if f.Cache != nil {
		c, err := cache.New(stack.Store, cache.Config{
			MaxItems:     f.Cache.MaxItems,
			SegmentAware: f.Cache.SegmentAware,
			Logger:       logger.With("component", "cache"),
		})
		if err != nil {
			_ = stack.Close(ctx)
			return nil, err
		}
		stack.Cache = c
		stack.Accessor = c
	}

	logger.Info("pathstore opened",
		"backend", f.Backend,
		"cache", f.Cache != nil,
	)
	return stack, nil
}

func openDatabase(ctx context.Context, f *File, logOut io.Writer, stack *Stack) (store.Database, error) {
	switch f.Backend {
	case BackendMemory:
		return memory.New(), nil

	case BackendMongoDB:
		timeout, err := f.MongoDB.timeout()
		if err != nil {
			return nil, err
		}
		driverLogger := NewDriverLogger(f.Log.Level, f.Log.Format, logOut)
		db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      f.MongoDB.URI,
			Port:     f.MongoDB.Port,
			Database: f.MongoDB.Database,
			Timeout:  timeout,
			Logger:   driverLogger,
		})
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, db.Close, func(context.Context) error {
			// Sync fails on non-file writers such as terminals; nothing to do about it.
			_ = driverLogger.Sync()
			return nil
		})
		return db, nil

	case BackendDynamoDB:
		var opts []func(*awsconfig.LoadOptions) error
		if f.DynamoDB.Region != "" {
			opts = append(opts, awsconfig.WithRegion(f.DynamoDB.Region))
		}
		if f.DynamoDB.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(f.DynamoDB.Profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if f.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.DynamoDB.Endpoint)
			}
		})
		dynamoCfg := storedynamo.DefaultConfig()
		dynamoCfg.TablePrefix = f.DynamoDB.TablePrefix
		return storedynamo.New(client, dynamoCfg), nil

	case BackendSQLite:
		db, err := sqlite.Open(f.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", f.SQLite.Path, err)
		}
		stack.closers = append(stack.closers, func(context.Context) error { return db.Close() })
		return db, nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, f.Backend)
	}
}
