package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/deepstreamIO/deepstream.io-storage-dynamodb/internal/storage/core"
)

// fakeDynamo is an in-memory DynamoAPI keyed by table then ds_id.
type fakeDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	batches  []*dynamodb.BatchWriteItemInput
	batchErr error
	leftover int
}

func newFakeDynamo(tables ...string) *fakeDynamo {
	f := &fakeDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
	for _, t := range tables {
		f.tables[t] = map[string]map[string]types.AttributeValue{}
	}
	return f
}

func keyOf(item map[string]types.AttributeValue) string {
	s, _ := item["ds_id"].(*types.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}

func (f *fakeDynamo) table(name *string) (map[string]map[string]types.AttributeValue, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
	}
	return t, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	t[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	delete(t, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, in)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for name, reqs := range in.RequestItems {
		t, err := f.table(aws.String(name))
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			if f.leftover > 0 {
				f.leftover--
				out.UnprocessedItems[name] = append(out.UnprocessedItems[name], r)
				continue
			}
			if r.PutRequest != nil {
				t[keyOf(r.PutRequest.Item)] = r.PutRequest.Item
			} else {
				delete(t, keyOf(r.DeleteRequest.Key))
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("exists")}
	}
	f.tables[name] = map[string]map[string]types.AttributeValue{}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	delete(f.tables, aws.ToString(in.TableName))
	return &dynamodb.DeleteTableOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func newTestDynamo(tables ...string) (*DynamoBackend, *fakeDynamo) {
	f := newFakeDynamo(tables...)
	b := NewDynamoBackend(f, "")
	b.pollInterval = time.Millisecond
	b.maxWait = time.Second
	return b, f
}

func TestDynamoBackend_ItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestDynamo("t")

	if err := b.PutItem(ctx, "t", core.Record{"ds_id": "a", "name": "x", "n": 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := b.GetItem(ctx, "t", "a")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got["name"] != "x" || got["n"] != float64(2) {
		t.Fatalf("got %v", got)
	}
	if err := b.DeleteItem(ctx, "t", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := b.GetItem(ctx, "t", "a"); found || err != nil {
		t.Fatalf("after delete: found=%v err=%v", found, err)
	}
}

func TestDynamoBackend_MissingTableMapsToErrNoSuchTable(t *testing.T) {
	b, _ := newTestDynamo()
	_, _, err := b.GetItem(context.Background(), "nope", "a")
	if !errors.Is(err, ErrNoSuchTable) {
		t.Fatalf("got %v want ErrNoSuchTable", err)
	}
}

func TestDynamoBackend_TableLifecycle(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestDynamo()

	if err := b.CreateTable(ctx, "NS0001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.CreateTable(ctx, "NS0001"); !errors.Is(err, core.ErrTableState) {
		t.Fatalf("second create: got %v want ErrTableState", err)
	}
	if err := b.WaitUntilExists(ctx, "NS0001"); err != nil {
		t.Fatalf("wait exists: %v", err)
	}
	if err := b.DeleteTable(ctx, "NS0001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.DeleteTable(ctx, "NS0001"); !errors.Is(err, core.ErrTableState) {
		t.Fatalf("second delete: got %v want ErrTableState", err)
	}
	if err := b.WaitUntilNotExists(ctx, "NS0001"); err != nil {
		t.Fatalf("wait not exists: %v", err)
	}
}

func TestDynamoBackend_BatchWriteChunksAt25(t *testing.T) {
	ctx := context.Background()
	b, f := newTestDynamo("t")

	var ops []core.Operation
	for i := 0; i < 60; i++ {
		id := string(rune('A'+i/26)) + string(rune('a'+i%26))
		ops = append(ops, core.Operation{Kind: core.OpPut, Key: id, Record: core.Record{"ds_id": id}})
	}
	if err := b.BatchWrite(ctx, core.Batch{"t": ops}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(f.batches) != 3 {
		t.Fatalf("got %d calls want 3", len(f.batches))
	}
	sizes := []int{25, 25, 10}
	for i, in := range f.batches {
		if n := countRequests(in.RequestItems); n != sizes[i] {
			t.Fatalf("call %d: got %d requests want %d", i, n, sizes[i])
		}
	}
	if len(f.tables["t"]) != 60 {
		t.Fatalf("got %d items want 60", len(f.tables["t"]))
	}
}

func TestDynamoBackend_BatchWriteSplitsRepeatedKey(t *testing.T) {
	ctx := context.Background()
	b, f := newTestDynamo("t")
	f.tables["t"]["x"] = map[string]types.AttributeValue{"ds_id": &types.AttributeValueMemberS{Value: "x"}}

	batch := core.Batch{"t": {
		{Kind: core.OpPut, Key: "y", Record: core.Record{"ds_id": "y"}},
		{Kind: core.OpPut, Key: "x", Record: core.Record{"ds_id": "x", "v": "new"}},
		{Kind: core.OpDelete, Key: "x"},
	}}
	if err := b.BatchWrite(ctx, batch); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(f.batches) != 2 {
		t.Fatalf("got %d calls want 2", len(f.batches))
	}
	if _, ok := f.tables["t"]["x"]; ok {
		t.Fatalf("delete after put was not applied last")
	}
	if _, ok := f.tables["t"]["y"]; !ok {
		t.Fatalf("y missing")
	}
}

func TestDynamoBackend_UnprocessedItemsFail(t *testing.T) {
	b, f := newTestDynamo("t")
	f.leftover = 1
	err := b.BatchWrite(context.Background(), core.Batch{"t": {{Kind: core.OpDelete, Key: "a"}}})
	if err == nil {
		t.Fatalf("expected error for unprocessed items")
	}
}

func TestDynamoBackend_BatchErrorPassesThrough(t *testing.T) {
	b, f := newTestDynamo("t")
	boom := errors.New("throttled")
	f.batchErr = boom
	err := b.BatchWrite(context.Background(), core.Batch{"t": {{Kind: core.OpDelete, Key: "a"}}})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want wrapped %v", err, boom)
	}
}

func TestDynamoBackend_CreateTableSchema(t *testing.T) {
	var captured *dynamodb.CreateTableInput
	f := &captureCreate{fakeDynamo: newFakeDynamo(), got: &captured}
	b := NewDynamoBackend(f, "id")
	if err := b.CreateTable(context.Background(), "t"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if captured == nil || len(captured.KeySchema) != 1 {
		t.Fatalf("create input not captured")
	}
	if got := aws.ToString(captured.KeySchema[0].AttributeName); got != "id" {
		t.Fatalf("got hash key %q want %q", got, "id")
	}
	if captured.KeySchema[0].KeyType != types.KeyTypeHash {
		t.Fatalf("got key type %v", captured.KeySchema[0].KeyType)
	}
}

type captureCreate struct {
	*fakeDynamo
	got **dynamodb.CreateTableInput
}

func (c *captureCreate) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	*c.got = in
	return c.fakeDynamo.CreateTable(ctx, in, opts...)
}

func TestDynamoBackend_NestedValuesSurvive(t *testing.T) {
	ctx := context.Background()
	b, f := newTestDynamo("t")
	rec := core.Record{"ds_id": "a", "_d": []any{"x", 1.5}}
	if err := b.PutItem(ctx, "t", rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	var raw map[string]any
	if err := attributevalue.UnmarshalMap(f.tables["t"]["a"], &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	list, _ := raw["_d"].([]any)
	if len(list) != 2 || list[0] != "x" || list[1] != 1.5 {
		t.Fatalf("got %v", raw["_d"])
	}
}
