// Package dynamodb implements store.Database on DynamoDB.
//
// Each collection maps to a table named TablePrefix+collection whose hash key
// is the string attribute "_id". Integer ids are stored as their decimal text
// and parsed back on read, so 42 and "42" address the same document (a path
// segment "42" always parses to the integer anyway).
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// Client is the subset of *dynamodb.Client used by the backend.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// TablePrefix is prepended to collection names to form table names.
	// Default: ""
	TablePrefix string

	// MaxAttempts bounds optimistic read-modify-write retries (pull and
	// nested set on missing parents).
	// Default: 3
	MaxAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3}
}

func (c *Config) validate() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
}

// ErrConcurrentModification is returned when a read-modify-write keeps losing
// races against other writers.
var ErrConcurrentModification = errors.New("pathstore: item was modified concurrently")

// Database is a store.Database backed by DynamoDB tables.
type Database struct {
	client Client
	config Config
}

var _ store.Database = (*Database)(nil)

// New creates a new Database.
func New(client Client, config Config) *Database {
	config.validate()
	return &Database{client: client, config: config}
}

// TableName returns the table backing a collection.
func (d *Database) TableName(collection string) string {
	return d.config.TablePrefix + collection
}

// CreateTable creates the table backing a collection, if missing, and waits
// until it is active.
func (d *Database) CreateTable(ctx context.Context, collection string, maxWait time.Duration) error {
	table := d.TableName(collection)
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(store.IDField), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(store.IDField), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, maxWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

// Collection returns a handle for the named collection.
func (d *Database) Collection(name string) store.Collection {
	return &Collection{
		client:      d.client,
		table:       d.TableName(name),
		maxAttempts: d.config.MaxAttempts,
	}
}

// Ping lists at most one table; any successful answer means the service is reachable.
func (d *Database) Ping(ctx context.Context) (bool, error) {
	if _, err := d.client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return false, err
	}
	return true, nil
}

// Collection is a store.Collection backed by one table.
type Collection struct {
	client      Client
	table       string
	maxAttempts int
}

func itemKey(id any) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.IDField: &types.AttributeValueMemberS{Value: pathcodec.FormatID(id)},
	}
}

// FindOne reads the item, projecting to field when set. The id is always
// projected so that an existing item never comes back empty.
func (c *Collection) FindOne(ctx context.Context, id any, field string) (store.Document, error) {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	}
	if field != "" && field != store.IDField {
		names := idNames()
		input.ProjectionExpression = aws.String("#id, " + pathExpr(pathcodec.Split(field), "#p", names))
		input.ExpressionAttributeNames = names
	} else if field == store.IDField {
		input.ProjectionExpression = aws.String("#id")
		input.ExpressionAttributeNames = idNames()
	}

	out, err := c.client.GetItem(ctx, input)
	if err != nil {
		if isResourceNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return decodeItem(out.Item)
}

// InsertOne puts a new item, failing if the id already exists.
func (c *Collection) InsertOne(ctx context.Context, doc store.Document) error {
	id, ok := doc[store.IDField]
	if !ok {
		return fmt.Errorf("dynamodb: insert into %q: document has no %s", c.table, store.IDField)
	}
	item, err := encodeItem(id, doc)
	if err != nil {
		return err
	}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: idNames(),
	})
	return err
}

// UpdateOne applies u. Updates to missing items are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id any, u store.Update) error {
	switch u.Op {
	case store.OpSet:
		return c.setPath(ctx, id, u.Field, u.Value, false)
	case store.OpPush:
		return c.setPath(ctx, id, u.Field, u.Value, true)
	case store.OpReplace:
		return c.replace(ctx, id, u.Value)
	case store.OpPull:
		return c.pull(ctx, id, u.Field, u.Value)
	case store.OpUnset:
		return c.unset(ctx, id, u.Field)
	default:
		return fmt.Errorf("%w: unknown update operator %s", store.ErrInvalidArgument, u.Op)
	}
}

// DeleteOne deletes the item.
func (c *Collection) DeleteOne(ctx context.Context, id any) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       itemKey(id),
	})
	if isResourceNotFound(err) {
		return nil
	}
	return err
}

// Drop deletes every item in the table. The table itself is kept so that
// later writes to the collection succeed, matching collection semantics of
// document stores that create collections on demand.
func (c *Collection) Drop(ctx context.Context) error {
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                aws.String(c.table),
		ProjectionExpression:     aws.String("#id"),
		ExpressionAttributeNames: idNames(),
		ConsistentRead:           aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isResourceNotFound(err) {
				return nil
			}
			return fmt.Errorf("scan %s: %w", c.table, err)
		}
		if err := c.deleteKeys(ctx, page.Items); err != nil {
			return err
		}
	}
	return nil
}

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

func (c *Collection) deleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		pending := map[string][]types.WriteRequest{c.table: requests}
		for len(pending) > 0 {
			out, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("batch delete %s: %w", c.table, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// idNames returns the expression attribute names for the id attribute.
func idNames() map[string]string {
	return map[string]string{"#id": store.IDField}
}

// pathExpr builds a document path expression ("#p0.#p1") for keys, adding
// the placeholders to names.
func pathExpr(keys []string, prefix string, names map[string]string) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		placeholder := fmt.Sprintf("%s%d", prefix, i)
		names[placeholder] = key
		parts[i] = placeholder
	}
	return strings.Join(parts, ".")
}
