package dynamodb

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// encodeItem marshals doc into an item keyed by id. Any "_id" in doc is
// ignored in favour of id.
func encodeItem(id any, doc map[string]any) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(doc)+1)
	for k, v := range doc {
		if k == store.IDField {
			continue
		}
		av, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		item[k] = av
	}
	item[store.IDField] = &types.AttributeValueMemberS{Value: pathcodec.FormatID(id)}
	return item, nil
}

// encodeValue marshals a single value. Integers beyond int64 keep their exact
// decimal text as a number attribute.
func encodeValue(v any) (types.AttributeValue, error) {
	return encodeNormalized(nested.Normalize(v))
}

func encodeNormalized(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case *big.Int:
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(t))
		for k, e := range t {
			av, err := encodeNormalized(e)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case []any:
		l := make([]types.AttributeValue, len(t))
		for i, e := range t {
			av, err := encodeNormalized(e)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return attributevalue.Marshal(t)
	}
}

// decodeItem unmarshals an item into a document of plain maps, lists and
// int64/*big.Int/float64 numbers, restoring the typed id.
func decodeItem(item map[string]types.AttributeValue) (store.Document, error) {
	var raw map[string]any
	err := attributevalue.UnmarshalMapWithOptions(item, &raw, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, err
	}

	doc, _ := nested.Normalize(decodeNumbers(raw)).(map[string]any)
	if doc == nil {
		doc = store.Document{}
	}
	if id, ok := doc[store.IDField].(string); ok {
		doc[store.IDField] = pathcodec.ParseID(id)
	}
	return doc, nil
}

func decodeNumbers(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return parseNumber(string(t))
	case map[string]any:
		for k, e := range t {
			t[k] = decodeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = decodeNumbers(e)
		}
		return t
	default:
		return t
	}
}

// parseNumber picks the narrowest exact representation for a number attribute.
func parseNumber(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// attrAt walks nested map attributes along keys.
func attrAt(item map[string]types.AttributeValue, keys []string) (types.AttributeValue, bool) {
	var cur types.AttributeValue = &types.AttributeValueMemberM{Value: item}
	for _, key := range keys {
		m, ok := cur.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		if cur, ok = m.Value[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

func isResourceNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}

// isValidation reports a ValidationException, which DynamoDB returns when an
// update expression's document path runs through a missing or non-map attribute.
func isValidation(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}
