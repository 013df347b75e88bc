package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/wehubfusion/Daedalus/pkg/completion"
)

// mockBlobClient keeps blobs in memory
type mockBlobClient struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMockBlobClient() *mockBlobClient {
	return &mockBlobClient{blobs: make(map[string][]byte)}
}

func (m *mockBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[blobPath] = append([]byte(nil), data...)
	return "https://example.test/" + blobPath, nil
}

func (m *mockBlobClient) Download(ctx context.Context, blobURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobURL]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func TestRunFilePath(t *testing.T) {
	if got := RunFilePath("run-1"); got != "runs/run-1/completions.json" {
		t.Errorf("Unexpected run file path: %q", got)
	}
}

func TestAppendCompletionsCreatesFile(t *testing.T) {
	blob := newMockBlobClient()
	client := NewRunFileClient(blob, nil)

	c := completion.NewCompletion("in", "out", nil)
	url, err := client.AppendCompletions(context.Background(), "run-1", []*completion.Completion{c})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if url == "" {
		t.Error("Expected blob URL")
	}

	runFile, err := client.GetRunFile(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	record, ok := runFile[c.ID.String()]
	if !ok {
		t.Fatal("Expected record keyed by completion ID")
	}
	if record.Text != "in" || record.Generated != "out" {
		t.Errorf("Unexpected record: %+v", record)
	}
	if record.Meta.Status != "success" {
		t.Errorf("Expected success status, got: %q", record.Meta.Status)
	}
}

func TestAppendCompletionsMergesWithExisting(t *testing.T) {
	blob := newMockBlobClient()
	client := NewRunFileClient(blob, nil)

	first := completion.NewCompletion("a", "1", nil)
	second := completion.NewCompletion("b", "2", nil)
	second.Failed = true

	if _, err := client.AppendCompletions(context.Background(), "run-1", []*completion.Completion{first}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := client.AppendCompletions(context.Background(), "run-1", []*completion.Completion{second}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	runFile, err := client.GetRunFile(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(runFile) != 2 {
		t.Fatalf("Expected 2 records, got: %d", len(runFile))
	}
	if runFile[second.ID.String()].Meta.Status != "failed" {
		t.Error("Expected failed status on the second record")
	}
}

func TestAppendCompletionsRecoversFromCorruptFile(t *testing.T) {
	blob := newMockBlobClient()
	blob.blobs[RunFilePath("run-1")] = []byte("{corrupt")
	client := NewRunFileClient(blob, nil)

	c := completion.NewCompletion("in", "out", nil)
	if _, err := client.AppendCompletions(context.Background(), "run-1", []*completion.Completion{c}); err != nil {
		t.Fatalf("Expected corrupt file to be replaced, got: %v", err)
	}

	var runFile RunFile
	if err := json.Unmarshal(blob.blobs[RunFilePath("run-1")], &runFile); err != nil {
		t.Fatalf("Expected valid run file after recovery, got: %v", err)
	}
	if len(runFile) != 1 {
		t.Errorf("Expected 1 record, got: %d", len(runFile))
	}
}

func TestAppendCompletionsEmptyIsNoop(t *testing.T) {
	blob := newMockBlobClient()
	client := NewRunFileClient(blob, nil)

	url, err := client.AppendCompletions(context.Background(), "run-1", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if url != "" {
		t.Errorf("Expected no upload, got URL: %q", url)
	}
	if len(blob.blobs) != 0 {
		t.Errorf("Expected no blobs written, got: %d", len(blob.blobs))
	}
}

func TestGetRecord(t *testing.T) {
	blob := newMockBlobClient()
	client := NewRunFileClient(blob, nil)

	c := completion.NewCompletion("in", "out", nil)
	if _, err := client.AppendCompletions(context.Background(), "run-1", []*completion.Completion{c}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	record, err := client.GetRecord(context.Background(), "run-1", c.ID.String())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if record.Generated != "out" {
		t.Errorf("Unexpected record: %+v", record)
	}

	if _, err := client.GetRecord(context.Background(), "run-1", "missing"); err == nil {
		t.Error("Expected error for missing record")
	}
}

func TestWatchCallbackPersistsCompletions(t *testing.T) {
	blob := newMockBlobClient()
	client := NewRunFileClient(blob, nil)

	watch := client.WatchCallback("run-7")
	completions := []*completion.Completion{
		completion.NewCompletion("a", "1", nil),
		completion.NewCompletion("b", "2", nil),
	}
	if err := watch(context.Background(), completions); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	runFile, err := client.GetRunFile(context.Background(), "run-7")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(runFile) != 2 {
		t.Errorf("Expected 2 persisted records, got: %d", len(runFile))
	}
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString("AccountName=dev;AccountKey=key==;BlobEndpoint=http://127.0.0.1:10000/dev")
	if params["AccountName"] != "dev" {
		t.Errorf("Expected account name, got: %q", params["AccountName"])
	}
	if params["AccountKey"] != "key==" {
		t.Errorf("Expected key with equals preserved, got: %q", params["AccountKey"])
	}
	if params["BlobEndpoint"] != "http://127.0.0.1:10000/dev" {
		t.Errorf("Expected endpoint, got: %q", params["BlobEndpoint"])
	}
}
