package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// ListIntegrations returns every configured integration.
func (s *Store) ListIntegrations(ctx context.Context) ([]models.Integration, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.IntegrationsTableName),
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan integrations: %w", err)
	}

	var integrations []models.Integration
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &integrations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integrations: %w", err)
	}
	return integrations, nil
}

// ListEnabledIntegrations returns integrations eligible for scheduled polling.
func (s *Store) ListEnabledIntegrations(ctx context.Context) ([]models.Integration, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.IntegrationsTableName),
		FilterExpression: aws.String("enabled = :enabled"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":enabled": &types.AttributeValueMemberBOOL{Value: true},
		},
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan enabled integrations: %w", err)
	}

	var integrations []models.Integration
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &integrations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integrations: %w", err)
	}
	return integrations, nil
}

// GetIntegration retrieves one integration by id.
func (s *Store) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.IntegrationsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var integ models.Integration
	if err := attributevalue.UnmarshalMap(result.Item, &integ); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integration: %w", err)
	}
	return &integ, nil
}

// PutIntegration creates or replaces an integration's configuration.
func (s *Store) PutIntegration(ctx context.Context, integ *models.Integration) error {
	item, err := attributevalue.MarshalMap(integ)
	if err != nil {
		return fmt.Errorf("failed to marshal integration: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.IntegrationsTableName),
		Item:      item,
	}
	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put integration: %w", err)
	}
	return nil
}

// UpdateIntegrationRun records one connector run's outcome. When lastRunAt is
// nil only the status moves, so a failed run never rewinds the watermark.
func (s *Store) UpdateIntegrationRun(ctx context.Context, id string, status models.IntegrationStatus, lastRunAt *time.Time) error {
	nowAV, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	expr := "SET int_status = :status, updated_at = :now"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(status)},
		":now":    nowAV,
	}
	if lastRunAt != nil {
		lastRunAV, err := attributevalue.Marshal(*lastRunAt)
		if err != nil {
			return fmt.Errorf("failed to marshal last run time: %w", err)
		}
		expr += ", last_run_at = :last_run"
		values[":last_run"] = lastRunAV
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.IntegrationsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(id)"),
	}

	if _, err := s.Client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to update integration run: %w", err)
	}
	return nil
}
