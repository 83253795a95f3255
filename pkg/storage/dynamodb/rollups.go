package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

func rollupKey(bucket, scope string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"bucket": &types.AttributeValueMemberS{Value: bucket},
		"scope":  &types.AttributeValueMemberS{Value: scope},
	}
}

// ApplyRollupDelta atomically increments the counters of one (bucket, scope)
// pair using DynamoDB's ADD action, which creates the item on first use and
// never loses concurrent increments.
func (s *Store) ApplyRollupDelta(ctx context.Context, bucket, scope string, delta models.Totals) error {
	nowAV, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.RollupsTableName),
		Key:       rollupKey(bucket, scope),
		UpdateExpression: aws.String(
			"ADD deposit_count :dc, deposit_sum :ds, withdrawal_count :wc, withdrawal_sum :ws SET updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dc":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta.DepositCount)},
			":ds":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta.DepositSum)},
			":wc":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta.WithdrawalCount)},
			":ws":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", delta.WithdrawalSum)},
			":now": nowAV,
		},
	}

	if _, err := s.Client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("failed to apply rollup delta: %w", err)
	}
	return nil
}

// GetRollupBucket retrieves one (bucket, scope) aggregate.
func (s *Store) GetRollupBucket(ctx context.Context, bucket, scope string) (*models.RollupBucket, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.RollupsTableName),
		Key:       rollupKey(bucket, scope),
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get rollup bucket: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var b models.RollupBucket
	if err := attributevalue.UnmarshalMap(result.Item, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rollup bucket: %w", err)
	}
	return &b, nil
}

// PutRollupBucket overwrites one (bucket, scope) aggregate.
func (s *Store) PutRollupBucket(ctx context.Context, b models.RollupBucket) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("failed to marshal rollup bucket: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.RollupsTableName),
		Item:      item,
	}
	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put rollup bucket: %w", err)
	}
	return nil
}

// ListRollupScopes returns every scope stored for a bucket.
func (s *Store) ListRollupScopes(ctx context.Context, bucket string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.RollupsTableName),
		KeyConditionExpression: aws.String("bucket = :bucket"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bucket": &types.AttributeValueMemberS{Value: bucket},
		},
		ProjectionExpression: aws.String("#scope"),
		ExpressionAttributeNames: map[string]string{
			"#scope": "scope",
		},
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollup scopes: %w", err)
	}

	var rows []struct {
		Scope string `dynamodbav:"scope"`
	}
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rollup scopes: %w", err)
	}

	scopes := make([]string, 0, len(rows))
	for _, r := range rows {
		scopes = append(scopes, r.Scope)
	}
	return scopes, nil
}
