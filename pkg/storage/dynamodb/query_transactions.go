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

func marshalInstant(t time.Time) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instant: %w", err)
	}
	return av, nil
}

// QueryTransactions returns transactions matching the filter, ordered by
// occurredAt descending. Range bounds are inclusive on both ends; a cursor
// bounds the page strictly below the previous page's last occurredAt. A nil
// returned cursor means the range is exhausted.
func (s *Store) QueryTransactions(ctx context.Context, filter storage.TransactionFilter) ([]models.Transaction, *time.Time, error) {
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: txQueryPartition},
	}
	keyCond := "gsi1pk = :pk"

	// The cursor replaces the upper range bound on the sort key; remaining
	// time bounds become filters.
	var filterExprs []string
	switch {
	case filter.Cursor != nil:
		av, err := marshalInstant(*filter.Cursor)
		if err != nil {
			return nil, nil, err
		}
		keyCond += " AND occurred_at < :cursor"
		values[":cursor"] = av
		if filter.From != nil {
			av, err := marshalInstant(*filter.From)
			if err != nil {
				return nil, nil, err
			}
			filterExprs = append(filterExprs, "occurred_at >= :from")
			values[":from"] = av
		}
		if filter.To != nil {
			av, err := marshalInstant(*filter.To)
			if err != nil {
				return nil, nil, err
			}
			filterExprs = append(filterExprs, "occurred_at <= :to")
			values[":to"] = av
		}
	case filter.From != nil && filter.To != nil:
		fromAV, err := marshalInstant(*filter.From)
		if err != nil {
			return nil, nil, err
		}
		toAV, err := marshalInstant(*filter.To)
		if err != nil {
			return nil, nil, err
		}
		keyCond += " AND occurred_at BETWEEN :from AND :to"
		values[":from"] = fromAV
		values[":to"] = toAV
	case filter.From != nil:
		av, err := marshalInstant(*filter.From)
		if err != nil {
			return nil, nil, err
		}
		keyCond += " AND occurred_at >= :from"
		values[":from"] = av
	case filter.To != nil:
		av, err := marshalInstant(*filter.To)
		if err != nil {
			return nil, nil, err
		}
		keyCond += " AND occurred_at <= :to"
		values[":to"] = av
	}

	if filter.Provider != "" {
		filterExprs = append(filterExprs, "provider = :provider")
		values[":provider"] = &types.AttributeValueMemberS{Value: filter.Provider}
	}
	if filter.Type != "" {
		filterExprs = append(filterExprs, "tx_type = :tx_type")
		values[":tx_type"] = &types.AttributeValueMemberS{Value: string(filter.Type)}
	}
	if filter.Status != "" {
		filterExprs = append(filterExprs, "tx_status = :tx_status")
		values[":tx_status"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.TransactionsTableName),
		IndexName:                 aws.String(txQueryGSI),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false), // occurredAt descending
	}
	if len(filterExprs) > 0 {
		expr := filterExprs[0]
		for _, e := range filterExprs[1:] {
			expr += " AND " + e
		}
		input.FilterExpression = aws.String(expr)
	}
	if filter.Limit > 0 {
		input.Limit = aws.Int32(filter.Limit)
	}

	// Limit caps items evaluated per request before the filter expression is
	// applied, so one Query can come back short of the page size with more
	// matching rows behind LastEvaluatedKey. Keep querying until the page is
	// full or the key range is exhausted.
	var transactions []models.Transaction
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to query transactions: %w", err)
		}

		var page []models.Transaction
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
		}
		transactions = append(transactions, page...)

		if filter.Limit > 0 && int32(len(transactions)) >= filter.Limit {
			transactions = transactions[:filter.Limit]
			next := transactions[len(transactions)-1].OccurredAt
			return transactions, &next, nil
		}
		if len(result.LastEvaluatedKey) == 0 {
			return transactions, nil, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}
