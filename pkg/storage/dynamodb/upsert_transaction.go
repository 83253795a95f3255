package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// txQueryGSI indexes every transaction under one partition so the ledger can
// be range-queried by occurred_at.
const txQueryGSI = "gsi1pk-occurred_at-index"

const txQueryPartition = "TX"

// UpsertTransaction merges tx into the ledger by its idempotency key. All
// fields are last-write-wins except created_at, which keeps the first write's
// value. The returned UpsertResult reports whether the write created the
// record or transitioned it into SUCCESS, derived from the item's old image
// in the same atomic update.
func (s *Store) UpsertTransaction(ctx context.Context, tx *models.Transaction) (storage.UpsertResult, error) {
	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return storage.UpsertResult{}, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	// Build SET clauses for every attribute except the key, preserving the
	// first write's created_at.
	values := map[string]types.AttributeValue{}
	names := map[string]string{}
	expr := "SET gsi1pk = :gsi1pk, created_at = if_not_exists(created_at, :created_at)"
	values[":gsi1pk"] = &types.AttributeValueMemberS{Value: txQueryPartition}
	values[":created_at"] = item["created_at"]

	i := 0
	for attr, av := range item {
		if attr == "id_key" || attr == "created_at" {
			continue
		}
		name := fmt.Sprintf("#a%d", i)
		value := fmt.Sprintf(":v%d", i)
		names[name] = attr
		values[value] = av
		expr += fmt.Sprintf(", %s = %s", name, value)
		i++
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.TransactionsTableName),
		Key: map[string]types.AttributeValue{
			"id_key": &types.AttributeValueMemberS{Value: tx.IdKey},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		return storage.UpsertResult{}, fmt.Errorf("failed to upsert transaction: %w", err)
	}

	if len(result.Attributes) == 0 {
		return storage.UpsertResult{Created: true}, nil
	}

	var old models.Transaction
	if err := attributevalue.UnmarshalMap(result.Attributes, &old); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("failed to unmarshal previous transaction: %w", err)
	}

	becameSuccess := old.Status != models.SUCCESS && tx.Status == models.SUCCESS
	return storage.UpsertResult{BecameSuccess: becameSuccess}, nil
}
