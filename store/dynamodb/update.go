package dynamodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// setPath sets (or, with push, appends to) the attribute at field. The native
// update is tried first; when DynamoDB rejects it because a parent map is
// missing, the deepest missing parent is created in one conditional write.
// Any other ValidationException is returned as is.
func (c *Collection) setPath(ctx context.Context, id any, field string, value any, push bool) error {
	keys := pathcodec.Split(field)

	for range c.maxAttempts {
		err := c.updateNative(ctx, id, keys, value, push)
		if err == nil || isConditionFailed(err) {
			// A failed id condition means the item is gone.
			return nil
		}
		if !isValidation(err) || len(keys) == 1 {
			return err
		}

		done, perr := c.createMissingParent(ctx, id, keys, value, push)
		if perr != nil && !isConditionFailed(perr) {
			return perr
		}
		if done {
			return nil
		}
		if perr == nil {
			// Every parent exists, so the rejection was about something else.
			return err
		}
	}
	op := "set"
	if push {
		op = "push"
	}
	return fmt.Errorf("%s %s.%s: %w", op, c.table, field, ErrConcurrentModification)
}

func (c *Collection) updateNative(ctx context.Context, id any, keys []string, value any, push bool) error {
	names := idNames()
	path := pathExpr(keys, "#p", names)

	av, err := encodeValue(value)
	if err != nil {
		return err
	}
	values := map[string]types.AttributeValue{":v": av}
	expr := "SET " + path + " = :v"
	if push {
		values[":v"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{av}}
		values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
		expr = fmt.Sprintf("SET %s = list_append(if_not_exists(%s, :empty), :v)", path, path)
	}

	_, err = c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       itemKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// createMissingParent reads the item, finds the first missing key along keys
// and writes the remainder as a fresh nested map under it. It reports false
// with a nil error when every parent of the leaf exists.
func (c *Collection) createMissingParent(ctx context.Context, id any, keys []string, value any, push bool) (bool, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, err
	}
	if out.Item == nil {
		return true, nil
	}
	doc, err := decodeItem(out.Item)
	if err != nil {
		return false, err
	}

	missing := -1
	cur := doc
	for i, key := range keys {
		v, ok := cur[key]
		if !ok {
			missing = i
			break
		}
		if i == len(keys)-1 {
			if _, isList := nested.AsList(v); push && !isList {
				return false, fmt.Errorf("push %s.%s: %w", c.table, joinKeys(keys), store.ErrNotList)
			}
			break
		}
		m, ok := nested.AsMap(v)
		if !ok {
			return false, fmt.Errorf("set %s: %q: %w", c.table, key, store.ErrNotMap)
		}
		cur = m
	}
	if missing < 0 || missing == len(keys)-1 {
		return false, nil
	}

	if push {
		value = []any{value}
	}
	rest := pathcodec.Assemble(joinKeys(keys[missing+1:]), value)
	av, err := encodeValue(rest)
	if err != nil {
		return false, err
	}

	names := idNames()
	parent := pathExpr(keys[:missing+1], "#p", names)
	_, err = c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       itemKey(id),
		UpdateExpression:          aws.String("SET " + parent + " = :v"),
		ConditionExpression:       aws.String(fmt.Sprintf("attribute_exists(#id) AND attribute_not_exists(%s)", parent)),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": av},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// replace overwrites the item body, keeping the id. Missing items stay missing.
func (c *Collection) replace(ctx context.Context, id any, value any) error {
	body, ok := nested.AsMap(value)
	if !ok {
		return fmt.Errorf("%w: replacement must be a map, got %T", store.ErrInvalidArgument, value)
	}
	item, err := encodeItem(id, body)
	if err != nil {
		return err
	}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: idNames(),
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// pull removes every element equal to value from the list at field. The new
// list is written only if the stored list is unchanged since it was read.
func (c *Collection) pull(ctx context.Context, id any, field string, value any) error {
	keys := pathcodec.Split(field)

	for range c.maxAttempts {
		names := idNames()
		path := pathExpr(keys, "#p", names)

		out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:                aws.String(c.table),
			Key:                      itemKey(id),
			ConsistentRead:           aws.Bool(true),
			ProjectionExpression:     aws.String("#id, " + path),
			ExpressionAttributeNames: names,
		})
		if err != nil {
			return err
		}
		if out.Item == nil {
			return nil
		}
		old, ok := attrAt(out.Item, keys)
		if !ok {
			return nil
		}

		doc, err := decodeItem(out.Item)
		if err != nil {
			return err
		}
		current, _ := nested.Get(doc, field)
		list, ok := nested.AsList(current)
		if !ok {
			return fmt.Errorf("pull %s.%s: %w", c.table, field, store.ErrNotList)
		}
		kept := nested.RemoveAll(list, value)
		if len(kept) == len(list) {
			return nil
		}

		av, err := encodeValue(kept)
		if err != nil {
			return err
		}
		_, err = c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(c.table),
			Key:                      itemKey(id),
			UpdateExpression:         aws.String("SET " + path + " = :new"),
			ConditionExpression:      aws.String(path + " = :old"),
			ExpressionAttributeNames: names,
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":new": av,
				":old": old,
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionFailed(err) {
			return err
		}
	}
	return fmt.Errorf("pull %s.%s: %w", c.table, field, ErrConcurrentModification)
}

// unset removes the attribute at field. A missing item or parent is a no-op.
func (c *Collection) unset(ctx context.Context, id any, field string) error {
	names := idNames()
	path := pathExpr(pathcodec.Split(field), "#p", names)

	_, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.table),
		Key:                      itemKey(id),
		UpdateExpression:         aws.String("REMOVE " + path),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: names,
	})
	if isConditionFailed(err) || isValidation(err) {
		return nil
	}
	return err
}

func joinKeys(keys []string) string {
	return strings.Join(keys, pathcodec.Separator)
}
