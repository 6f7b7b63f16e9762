package ddb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/registry"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.PutItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.QueryOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCommitStoreCurrentEmpty(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.TableName) == "pcago-commits" &&
			!aws.ToBool(in.ScanIndexForward) &&
			aws.ToInt32(in.Limit) == 1
	})).Return(&dynamodb.QueryOutput{}, nil)

	version, key, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.Empty(t, key)

	client.AssertExpectations(t)
}

func TestCommitStoreCurrent(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("Query", ctx, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			{
				"registry_id": &types.AttributeValueMemberS{Value: "s3://bucket/models"},
				"version":     &types.AttributeValueMemberN{Value: "7"},
				"catalog_key": &types.AttributeValueMemberS{Value: "registry/0000000000000007.cat"},
			},
		},
	}, nil)

	version, key, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), version)
	assert.Equal(t, "registry/0000000000000007.cat", key)
}

func TestCommitStoreCurrentMalformed(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("Query", ctx, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			{
				"version": &types.AttributeValueMemberN{Value: "7"},
			},
		},
	}, nil)

	_, _, err := store.Current(ctx)
	assert.ErrorContains(t, err, "catalog_key")
}

func TestCommitStoreCommit(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("PutItem", ctx, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		version, ok := in.Item["version"].(*types.AttributeValueMemberN)
		if !ok || version.Value != "8" {
			return false
		}
		key, ok := in.Item["catalog_key"].(*types.AttributeValueMemberS)
		if !ok || key.Value != "registry/0000000000000008.cat" {
			return false
		}
		return aws.ToString(in.ConditionExpression) == "attribute_not_exists(version)"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	require.NoError(t, store.Commit(ctx, 8, "registry/0000000000000008.cat"))

	client.AssertExpectations(t)
}

func TestCommitStoreCommitConflict(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("PutItem", ctx, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{})

	err := store.Commit(ctx, 8, "registry/0000000000000008.cat")
	assert.ErrorIs(t, err, registry.ErrConcurrentCommit)
}

func TestCommitStoreCommitError(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	store := NewCommitStore(client, "pcago-commits", "s3://bucket/models")

	client.On("PutItem", ctx, mock.Anything).
		Return(nil, errors.New("throttled"))

	err := store.Commit(ctx, 8, "registry/0000000000000008.cat")
	require.Error(t, err)
	assert.NotErrorIs(t, err, registry.ErrConcurrentCommit)
}
