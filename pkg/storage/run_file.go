package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/completion"
	"github.com/wehubfusion/Daedalus/pkg/generation"
)

// RunRecordMeta contains metadata about one generation request
type RunRecordMeta struct {
	Status     string `json:"status"`     // "success" or "failed"
	StopReason string `json:"stopReason"` // Why the backend stopped generating
	StoredAt   string `json:"storedAt"`   // When the record was written
}

// RunRecord is the stored form of a single finalized completion
type RunRecord struct {
	Meta      RunRecordMeta          `json:"_meta"`
	Text      string                 `json:"text"`
	Generated string                 `json:"generated"`
	Usage     *generation.Usage      `json:"usage,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RunFile is the shared run file holding every record of one run
// Format: { "<completion_id>": RunRecord, ... }
type RunFile map[string]*RunRecord

// RunFileClient persists finalized completions into a per-run blob. Appends
// read the current file, merge, and write back; a mutex keeps concurrent
// watch notifications from clobbering each other.
type RunFileClient struct {
	blobClient BlobStorageClient
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewRunFileClient creates a new run file client
func NewRunFileClient(blobClient BlobStorageClient, logger *zap.Logger) *RunFileClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunFileClient{
		blobClient: blobClient,
		logger:     logger,
	}
}

// RunFilePath returns the standard blob path for a run's record file
func RunFilePath(runID string) string {
	return fmt.Sprintf("runs/%s/completions.json", runID)
}

// NewRunRecord builds the stored form of a completion
func NewRunRecord(c *completion.Completion) *RunRecord {
	status := "success"
	if c.Failed {
		status = "failed"
	}
	return &RunRecord{
		Meta: RunRecordMeta{
			Status:     status,
			StopReason: string(c.StopReason),
			StoredAt:   time.Now().Format(time.RFC3339),
		},
		Text:      c.Text,
		Generated: c.Generated,
		Usage:     c.Usage,
		Metadata:  c.Metadata,
	}
}

// AppendCompletions adds the given completions to the run file. The operation
// reads the current file, merges the new records, and writes back.
func (c *RunFileClient) AppendCompletions(ctx context.Context, runID string, completions []*completion.Completion) (string, error) {
	if c.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}
	if len(completions) == 0 {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blobPath := RunFilePath(runID)

	c.logger.Debug("Appending completions to run file",
		zap.String("run_id", runID),
		zap.Int("count", len(completions)),
		zap.String("blob_path", blobPath))

	var runFile RunFile
	existingData, err := c.blobClient.Download(ctx, blobPath)
	if err != nil {
		// File doesn't exist yet
		runFile = make(RunFile)
	} else {
		if err := json.Unmarshal(existingData, &runFile); err != nil {
			c.logger.Error("Failed to parse existing run file, starting fresh",
				zap.String("blob_path", blobPath),
				zap.Error(err))
			runFile = make(RunFile)
		}
	}

	for _, cpl := range completions {
		runFile[cpl.ID.String()] = NewRunRecord(cpl)
	}

	updatedData, err := json.Marshal(runFile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run file: %w", err)
	}

	blobURL, err := c.blobClient.Upload(ctx, blobPath, updatedData, map[string]string{
		"run_id":        runID,
		"record_count":  fmt.Sprintf("%d", len(runFile)),
		"last_modified": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload run file: %w", err)
	}

	c.logger.Info("Appended completions to run file",
		zap.String("run_id", runID),
		zap.Int("total_records", len(runFile)),
		zap.Int("size_bytes", len(updatedData)))

	return blobURL, nil
}

// GetRunFile downloads and parses the entire run file
func (c *RunFileClient) GetRunFile(ctx context.Context, runID string) (RunFile, error) {
	if c.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := c.blobClient.Download(ctx, RunFilePath(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to download run file: %w", err)
	}

	var runFile RunFile
	if err := json.Unmarshal(data, &runFile); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}

	return runFile, nil
}

// GetRecord retrieves a single completion's record from the run file
func (c *RunFileClient) GetRecord(ctx context.Context, runID, completionID string) (*RunRecord, error) {
	runFile, err := c.GetRunFile(ctx, runID)
	if err != nil {
		return nil, err
	}

	record, exists := runFile[completionID]
	if !exists {
		return nil, fmt.Errorf("completion record not found: %s", completionID)
	}

	return record, nil
}

// WatchCallback adapts the client to the pipeline's watch stage, persisting
// every finalized completion under the given run identifier.
func (c *RunFileClient) WatchCallback(runID string) completion.WatchCallback {
	return func(ctx context.Context, completions []*completion.Completion) error {
		_, err := c.AppendCompletions(ctx, runID, completions)
		return err
	}
}
