package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const skBody = "BODY#"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a DynamoDB table holding one serialized document per
// record key. Each record is stored whole, so a load after a write always
// observes a consistent document.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new record Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// recordPK returns the DynamoDB partition key for a record.
func recordPK(key string) string {
	return "REC#" + key
}

func recordItemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: recordPK(key)},
		"SK": &types.AttributeValueMemberS{Value: skBody},
	}
}

// GetRecord fetches a record body by key. The second return value reports
// whether the record exists; a missing record is not an error.
func (c *Client) GetRecord(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, errors.New("repository: GetRecord: key is required")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            recordItemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: GetRecord %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	body, err := strAttr(out.Item, "body")
	if err != nil {
		return "", false, fmt.Errorf("repository: GetRecord %q: %w", key, err)
	}
	return body, true, nil
}

// PutRecord writes or replaces a record body.
func (c *Client) PutRecord(ctx context.Context, key, body string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: PutRecord: key is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: recordPK(key)},
			"SK":        &types.AttributeValueMemberS{Value: skBody},
			"recordKey": &types.AttributeValueMemberS{Value: key},
			"body":      &types.AttributeValueMemberS{Value: body},
			"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: PutRecord %q: %w", key, err)
	}
	return nil
}

// DeleteRecord removes a record entirely, so a subsequent GetRecord for
// the same key reports the record as absent. Deleting a missing record is
// a no-op.
func (c *Client) DeleteRecord(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: DeleteRecord: key is required")
	}

	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       recordItemKey(key),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteRecord %q: %w", key, err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}
