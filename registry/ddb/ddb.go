// Package ddb implements a registry.CommitStore backed by a DynamoDB table.
//
// Blob stores such as S3 offer no compare-and-swap, so catalog commits go
// through DynamoDB conditional writes instead. Each commit is one item; the
// condition `attribute_not_exists(version)` guarantees that of two
// publishers racing to claim a version, exactly one wins.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mnmg/pcago/registry"
)

// Client is the subset of the DynamoDB API the commit store uses.
// *dynamodb.Client satisfies it.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommitStore records committed catalog revisions in a DynamoDB table.
//
// Table schema:
//   - Partition key: registry_id (string)
//   - Sort key: version (number)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name pcago-commits \
//	  --attribute-definitions AttributeName=registry_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=registry_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	client     Client
	table      string
	registryID string
}

var _ registry.CommitStore = (*CommitStore)(nil)

// NewCommitStore creates a commit store over an existing table. registryID
// partitions independent registries sharing one table.
func NewCommitStore(client Client, table, registryID string) *CommitStore {
	return &CommitStore{
		client:     client,
		table:      table,
		registryID: registryID,
	}
}

// Current queries the highest committed version for this registry.
func (s *CommitStore) Current(ctx context.Context) (uint64, string, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("registry_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: s.registryID},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("ddb: query latest commit: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]

	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("ddb: missing version attribute")
	}

	keyAttr, ok := item["catalog_key"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("ddb: missing catalog_key attribute")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("ddb: parse version: %w", err)
	}

	return version, keyAttr.Value, nil
}

// Commit claims version with a conditional write. A lost race returns
// registry.ErrConcurrentCommit.
func (s *CommitStore) Commit(ctx context.Context, version uint64, key string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"registry_id": &types.AttributeValueMemberS{Value: s.registryID},
			"version":     &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"catalog_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return registry.ErrConcurrentCommit
		}
		return fmt.Errorf("ddb: commit version %d: %w", version, err)
	}

	return nil
}
