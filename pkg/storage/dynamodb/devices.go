package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/openmomo/ledgerd/pkg/models"
)

// UpsertDeviceHeartbeat merges one heartbeat into the device record.
func (s *Store) UpsertDeviceHeartbeat(ctx context.Context, d models.Device) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.DevicesTableName),
		Item:      item,
	}
	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put device heartbeat: %w", err)
	}
	return nil
}

// ListDevices returns every known device.
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.DevicesTableName),
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}

	var devices []models.Device
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}
	return devices, nil
}

// AppendIngestEvent appends one raw-batch audit record.
func (s *Store) AppendIngestEvent(ctx context.Context, ev models.IngestEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest event: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.IngestEventsTableName),
		Item:      item,
	}
	if _, err := s.Client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to append ingest event: %w", err)
	}
	return nil
}
