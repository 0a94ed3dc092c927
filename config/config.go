// Package config loads pathstore settings from HCL files and assembles a
// ready-to-use accessor stack from them.
//
// Example:
//
//	backend = "mongodb"
//
//	mongodb {
//	  uri      = env.MONGO_URI
//	  port     = 27017
//	  database = "app"
//	}
//
//	cache {
//	  max_items = 1024
//	}
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
//
// Environment variables are available to expressions as env.NAME.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendMongoDB  = "mongodb"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// ErrInvalidConfig is returned for configuration that decodes but cannot be used.
var ErrInvalidConfig = errors.New("pathstore: invalid configuration")

// File is the decoded configuration file.
type File struct {
	Backend  string         `hcl:"backend,optional"`
	MongoDB  *MongoDBBlock  `hcl:"mongodb,block"`
	DynamoDB *DynamoDBBlock `hcl:"dynamodb,block"`
	SQLite   *SQLiteBlock   `hcl:"sqlite,block"`
	Store    *StoreBlock    `hcl:"store,block"`
	Cache    *CacheBlock    `hcl:"cache,block"`
	Log      *LogBlock      `hcl:"log,block"`
}

// MongoDBBlock configures the MongoDB backend.
type MongoDBBlock struct {
	URI      string `hcl:"uri,optional"`
	Port     int    `hcl:"port,optional"`
	Database string `hcl:"database"`
	Timeout  string `hcl:"timeout,optional"`
}

// DynamoDBBlock configures the DynamoDB backend.
type DynamoDBBlock struct {
	TablePrefix string `hcl:"table_prefix,optional"`
	Region      string `hcl:"region,optional"`
	Profile     string `hcl:"profile,optional"`
	Endpoint    string `hcl:"endpoint,optional"`
}

// SQLiteBlock configures the SQLite backend.
type SQLiteBlock struct {
	Path string `hcl:"path"`
}

// StoreBlock configures the path accessor.
type StoreBlock struct {
	FetchWholeDocument bool `hcl:"fetch_whole_document,optional"`
}

// CacheBlock enables the read-through cache.
type CacheBlock struct {
	MaxItems     int  `hcl:"max_items,optional"`
	SegmentAware bool `hcl:"segment_aware,optional"`
}

// LogBlock configures logging.
type LogBlock struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Load parses and validates the HCL file at path.
func Load(path string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}
	return decode(hclFile, path)
}

// Parse parses and validates HCL source. filename is used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}
	return decode(hclFile, filename)
}

func decode(hclFile *hcl.File, filename string) (*File, error) {
	var f File
	if diags := gohcl.DecodeBody(hclFile.Body, evalContext(), &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// Default returns the configuration used when no file is given: an
// in-memory store without a cache.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.Backend == "" {
		f.Backend = BackendMemory
	}
	if f.MongoDB != nil && f.MongoDB.URI == "" {
		f.MongoDB.URI = "mongodb://localhost"
	}
	if f.Cache != nil && f.Cache.MaxItems == 0 {
		f.Cache.MaxItems = 1024
	}
	if f.Log == nil {
		f.Log = &LogBlock{}
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}
}

func (f *File) validate() error {
	switch f.Backend {
	case BackendMemory:
	case BackendMongoDB:
		if f.MongoDB == nil {
			return fmt.Errorf("%w: backend %q needs a mongodb block", ErrInvalidConfig, f.Backend)
		}
		if _, err := f.MongoDB.timeout(); err != nil {
			return err
		}
	case BackendDynamoDB:
		if f.DynamoDB == nil {
			return fmt.Errorf("%w: backend %q needs a dynamodb block", ErrInvalidConfig, f.Backend)
		}
	case BackendSQLite:
		if f.SQLite == nil {
			return fmt.Errorf("%w: backend %q needs a sqlite block", ErrInvalidConfig, f.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, f.Backend)
	}

	if f.Cache != nil && f.Cache.MaxItems < 1 {
		return fmt.Errorf("%w: cache max_items must be at least 1, got %d", ErrInvalidConfig, f.Cache.MaxItems)
	}
	switch f.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, f.Log.Format)
	}
	return nil
}

// timeout parses the optional duration; empty means the driver default.
func (b *MongoDBBlock) timeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: mongodb timeout: %w", ErrInvalidConfig, err)
	}
	return d, nil
}
