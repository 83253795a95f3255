package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testTx() *models.Transaction {
	return &models.Transaction{
		IdKey:      "EXT_GENERIC:DEMO-1",
		Provider:   "EXT_GENERIC",
		Type:       models.Deposit,
		Amount:     10000,
		Currency:   "UGX",
		Status:     models.SUCCESS,
		OccurredAt: time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestUpsertTransaction(t *testing.T) {
	t.Run("New Record", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, TransactionsTableName: "transactions"}

		// No old image means the update created the item.
		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.UpdateItemInput) bool {
			return input.ReturnValues == types.ReturnValueAllOld
		})).Once().Return(&dynamodb.UpdateItemOutput{}, nil)

		result, err := store.UpsertTransaction(context.Background(), testTx())

		assert.NoError(t, err)
		assert.True(t, result.Created)
		assert.False(t, result.BecameSuccess)
		mockClient.AssertExpectations(t)
	})

	t.Run("Replay Is No-Op", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, TransactionsTableName: "transactions"}

		oldAV, _ := attributevalue.MarshalMap(testTx())
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Once().Return(&dynamodb.UpdateItemOutput{Attributes: oldAV}, nil)

		result, err := store.UpsertTransaction(context.Background(), testTx())

		assert.NoError(t, err)
		assert.False(t, result.Created)
		assert.False(t, result.BecameSuccess)
		mockClient.AssertExpectations(t)
	})

	t.Run("Pending Becomes Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, TransactionsTableName: "transactions"}

		old := testTx()
		old.Status = models.PENDING
		oldAV, _ := attributevalue.MarshalMap(old)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Once().Return(&dynamodb.UpdateItemOutput{Attributes: oldAV}, nil)

		result, err := store.UpsertTransaction(context.Background(), testTx())

		assert.NoError(t, err)
		assert.False(t, result.Created)
		assert.True(t, result.BecameSuccess)
		mockClient.AssertExpectations(t)
	})

	t.Run("Update Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, TransactionsTableName: "transactions"}

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		_, err := store.UpsertTransaction(context.Background(), testTx())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert transaction")
		mockClient.AssertExpectations(t)
	})
}
