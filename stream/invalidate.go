// Package stream provides DynamoDB Streams handlers that keep caches in step
// with writes made by other processes.
package stream

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/pathstore/cache"
	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// Invalidator evicts cached paths. *cache.Cache satisfies it.
type Invalidator interface {
	Invalidate(keys []string, opts cache.InvalidateOptions)
}

var _ Invalidator = (*cache.Cache)(nil)

// Config holds configuration for the handler.
type Config struct {
	// TablePrefix is stripped from table names to recover collection names.
	// Records from tables without the prefix are ignored.
	// Default: ""
	TablePrefix string
}

// Handler turns stream records into cache invalidations.
type Handler struct {
	cache  Invalidator
	config Config
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(c Invalidator, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cache:  c,
		config: config,
		logger: logger,
	}
}

// HandleInvalidate evicts every cached path under each changed document,
// i.e. a prefix invalidation of "collection.id". It is designed to be used
// as an AWS Lambda handler on the tables' streams.
func (h *Handler) HandleInvalidate(ctx context.Context, event events.DynamoDBEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make([]string, 0, len(event.Records))
	for i := range event.Records {
		if key, ok := h.recordPath(&event.Records[i]); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	h.cache.Invalidate(keys, cache.InvalidateOptions{Prefix: true})
	h.logger.Info("invalidated cached documents",
		"records", len(event.Records),
		"documents", len(keys),
	)
	return nil
}

// recordPath returns the "collection.id" path a record changed.
func (h *Handler) recordPath(record *events.DynamoDBEventRecord) (string, bool) {
	switch record.EventName {
	case string(events.DynamoDBOperationTypeInsert),
		string(events.DynamoDBOperationTypeModify),
		string(events.DynamoDBOperationTypeRemove):
	default:
		return "", false
	}

	table := tableName(record.EventSourceArn)
	collection, ok := strings.CutPrefix(table, h.config.TablePrefix)
	if !ok || collection == "" {
		return "", false
	}

	id, ok := streamID(record.Change.Keys)
	if !ok {
		h.logger.Warn("stream record without document id",
			"eventID", record.EventID,
			"table", table,
		)
		return "", false
	}
	return pathcodec.Join(collection, id, ""), true
}

// tableName extracts the table from a stream ARN
// (arn:aws:dynamodb:region:account:table/NAME/stream/LABEL).
func tableName(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// streamID reads the document id from a stream record's keys. An empty
// string id is still an id.
func streamID(keys map[string]events.DynamoDBAttributeValue) (any, bool) {
	if s, ok := getStringAttr(keys, store.IDField); ok {
		return pathcodec.ParseID(s), true
	}
	if n, ok := getNumberAttr(keys, store.IDField); ok {
		return pathcodec.ParseID(n), true
	}
	return nil, false
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) (string, bool) {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String(), true
	}
	return "", false
}

// getNumberAttr extracts the text of a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) (string, bool) {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeNumber {
		return v.Number(), true
	}
	return "", false
}
