// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

// maxBatchWriteItems is the DynamoDB limit on requests per BatchWriteItem call.
const maxBatchWriteItems = 25

// DynamoAPI is the subset of *dynamodb.Client the backend needs.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// NewDynamoClient loads the default AWS credential chain for region. A non-empty
// endpoint points the client at a local DynamoDB.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// DynamoBackend stores each table as a DynamoDB table with a string hash key named
// after the key field.
type DynamoBackend struct {
	client       DynamoAPI
	keyField     string
	maxWait      time.Duration
	pollInterval time.Duration
}

// NewDynamoBackend wraps client. Table waits give up after five minutes unless the
// caller's context ends sooner.
func NewDynamoBackend(client DynamoAPI, keyField string) *DynamoBackend {
	if keyField == "" {
		keyField = core.DefaultKeyField
	}
	return &DynamoBackend{
		client:       client,
		keyField:     keyField,
		maxWait:      5 * time.Minute,
		pollInterval: 2 * time.Second,
	}
}

func (d *DynamoBackend) itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		d.keyField: &types.AttributeValueMemberS{Value: id},
	}
}

func (d *DynamoBackend) PutItem(ctx context.Context, table string, record core.Record) error {
	item, err := attributevalue.MarshalMap(map[string]any(record))
	if err != nil {
		return fmt.Errorf("dynamodb put %s: marshal: %w", table, err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", table, mapItemError(table, err))
	}
	return nil
}

func (d *DynamoBackend) GetItem(ctx context.Context, table, key string) (core.Record, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get %s/%s: %w", table, key, mapItemError(table, err))
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var record map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, false, fmt.Errorf("dynamodb get %s/%s: unmarshal: %w", table, key, err)
	}
	return core.Record(record), true, nil
}

func (d *DynamoBackend) DeleteItem(ctx context.Context, table, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s/%s: %w", table, key, mapItemError(table, err))
	}
	return nil
}

// BatchWrite sends the batch in BatchWriteItem calls of at most 25 requests.
// DynamoDB rejects a call that touches the same key twice, so a put and a delete of
// one item go out in consecutive calls, preserving their order. Unprocessed items
// are reported as an error rather than retried.
func (d *DynamoBackend) BatchWrite(ctx context.Context, batch core.Batch) error {
	chunks, err := d.chunkBatch(batch)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: chunk})
		if err != nil {
			return fmt.Errorf("dynamodb batch write chunk=%d/%d: %w", i+1, len(chunks), err)
		}
		if n := countRequests(out.UnprocessedItems); n > 0 {
			return fmt.Errorf("dynamodb batch write chunk=%d/%d: %d requests unprocessed", i+1, len(chunks), n)
		}
	}
	return nil
}

func (d *DynamoBackend) chunkBatch(batch core.Batch) ([]map[string][]types.WriteRequest, error) {
	var (
		chunks []map[string][]types.WriteRequest
		cur    map[string][]types.WriteRequest
		seen   map[string]struct{}
		size   int
	)
	startChunk := func() {
		cur = make(map[string][]types.WriteRequest)
		seen = make(map[string]struct{})
		size = 0
		chunks = append(chunks, cur)
	}
	startChunk()

	for _, table := range batch.Tables() {
		for _, op := range batch[table] {
			var req types.WriteRequest
			switch op.Kind {
			case core.OpPut:
				item, err := attributevalue.MarshalMap(map[string]any(op.Record))
				if err != nil {
					return nil, fmt.Errorf("dynamodb batch write %s/%s: marshal: %w", table, op.Key, err)
				}
				req.PutRequest = &types.PutRequest{Item: item}
			case core.OpDelete:
				req.DeleteRequest = &types.DeleteRequest{Key: d.itemKey(op.Key)}
			default:
				return nil, fmt.Errorf("dynamodb batch write: unknown operation %v", op.Kind)
			}

			id := table + "\x00" + op.Key
			if _, dup := seen[id]; dup || size == maxBatchWriteItems {
				startChunk()
			}
			cur[table] = append(cur[table], req)
			seen[id] = struct{}{}
			size++
		}
	}
	if size == 0 {
		return nil, nil
	}
	return chunks, nil
}

func countRequests(items map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range items {
		n += len(reqs)
	}
	return n
}

// CreateTable creates an on-demand table keyed by the key field.
func (d *DynamoBackend) CreateTable(ctx context.Context, name string) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(d.keyField),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(d.keyField),
			KeyType:       types.KeyTypeHash,
		}},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return fmt.Errorf("dynamodb create table %s: %w: %v", name, core.ErrTableState, err)
		}
		return fmt.Errorf("dynamodb create table %s: %w", name, err)
	}
	return nil
}

func (d *DynamoBackend) DeleteTable(ctx context.Context, name string) error {
	_, err := d.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		var inUse *types.ResourceInUseException
		if errors.As(err, &notFound) || errors.As(err, &inUse) {
			return fmt.Errorf("dynamodb delete table %s: %w: %v", name, core.ErrTableState, err)
		}
		return fmt.Errorf("dynamodb delete table %s: %w", name, err)
	}
	return nil
}

func (d *DynamoBackend) WaitUntilExists(ctx context.Context, name string) error {
	w := dynamodb.NewTableExistsWaiter(d.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = d.pollInterval
	})
	if err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, d.maxWait); err != nil {
		return fmt.Errorf("dynamodb wait for table %s: %w", name, err)
	}
	return nil
}

func (d *DynamoBackend) WaitUntilNotExists(ctx context.Context, name string) error {
	w := dynamodb.NewTableNotExistsWaiter(d.client, func(o *dynamodb.TableNotExistsWaiterOptions) {
		o.MinDelay = d.pollInterval
	})
	if err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, d.maxWait); err != nil {
		return fmt.Errorf("dynamodb wait for table %s removal: %w", name, err)
	}
	return nil
}

func mapItemError(table string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s: %v", ErrNoSuchTable, table, err)
	}
	return err
}
