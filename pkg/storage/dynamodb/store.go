package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the Store.
// It exists so tests can substitute a mock client.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements the Storage interface using AWS DynamoDB.
type Store struct {
	Client                DynamoDBAPI
	TransactionsTableName string
	RollupsTableName      string
	IntegrationsTableName string
	DevicesTableName      string
	IngestEventsTableName string
}

// New creates a new Store.
func New(client DynamoDBAPI, transactionsTable, rollupsTable, integrationsTable, devicesTable, ingestEventsTable string) *Store {
	return &Store{
		Client:                client,
		TransactionsTableName: transactionsTable,
		RollupsTableName:      rollupsTable,
		IntegrationsTableName: integrationsTable,
		DevicesTableName:      devicesTable,
		IngestEventsTableName: ingestEventsTable,
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)
