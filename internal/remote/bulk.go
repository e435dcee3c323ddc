package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

const (
	bulkPollInterval = 30 * time.Second
	bulkJobTimeout    = 2 * time.Hour
)

type bulkJob struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type bulkBatch struct {
	ID    string `json:"id"`
	JobID string `json:"jobId"`
	State string `json:"state"`
}

// BulkQuery implements RemoteClient.BulkQuery: create an async query
// job scoped to sobject, submit soql as the batch body, poll every 30s
// until the batch reaches a terminal state, then stream every result
// set. Polling runs in a goroutine feeding the shared recordStream so
// the caller can cancel mid-poll via ctx instead of blocking the whole
// process.
func (c *Client) BulkQuery(ctx context.Context, sobject string, soql string, timeout time.Duration) (types.RecordStream, error) {
	if timeout <= 0 {
		timeout = bulkJobTimeout
	}

	job, err := c.createBulkJob(ctx, sobject)
	if err != nil {
		return nil, errors.Wrapf(err, "create bulk job for %s", sobject)
	}

	batch, err := c.submitBulkBatch(ctx, job.ID, soql)
	if err != nil {
		c.closeBulkJob(ctx, job.ID)
		return nil, errors.Wrapf(err, "submit bulk batch for %s", sobject)
	}

	return newRecordStream(ctx, func(ctx context.Context, emit func(types.Record)) error {
		defer c.closeBulkJob(ctx, job.ID)

		deadline := time.Now().Add(timeout)
		ticker := time.NewTicker(bulkPollInterval)
		defer ticker.Stop()

		for {
			state, err := c.bulkBatchState(ctx, job.ID, batch.ID)
			if err != nil {
				return err
			}
			switch strings.ToLower(state) {
			case "completed":
				return c.streamBulkResults(ctx, job.ID, batch.ID, emit)
			case "failed", "notprocessed":
				return errors.Wrapf(types.ErrBulkTimeout, "bulk batch %s ended in state %q", batch.ID, state)
			}

			if time.Now().After(deadline) {
				return errors.Wrapf(types.ErrBulkTimeout, "bulk batch %s exceeded %s", batch.ID, timeout)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}), nil
}

func (c *Client) createBulkJob(ctx context.Context, sobject string) (*bulkJob, error) {
	body, _ := json.Marshal(map[string]string{
		"operation":   "queryAll",
		"object":      sobject,
		"contentType": "JSON",
	})

	req, err := c.newRequest(ctx, http.MethodPost, c.asyncURL("job"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c.pkChunking {
		size := c.pkChunkingSize
		if size <= 0 {
			size = 100000
		}
		req.Header.Set("Sforce-Enable-PKChunking", "chunkSize="+strconv.Itoa(size))
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "bulk job create request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Wrapf(types.ErrRemoteTransient, "bulk job create: status %d", resp.StatusCode)
	}

	var job bulkJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, errors.Wrap(err, "decode bulk job")
	}
	return &job, nil
}

func (c *Client) submitBulkBatch(ctx context.Context, jobID, soql string) (*bulkBatch, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.asyncURL("job/"+jobID+"/batch"), strings.NewReader(soql))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/csv; charset=UTF-8")

	resp, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "bulk batch submit request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Wrapf(types.ErrRemoteTransient, "bulk batch submit: status %d", resp.StatusCode)
	}

	var batch bulkBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, errors.Wrap(err, "decode bulk batch")
	}
	return &batch, nil
}

func (c *Client) bulkBatchState(ctx context.Context, jobID, batchID string) (string, error) {
	var batch bulkBatch
	if err := c.get(ctx, c.asyncURL("job/"+jobID+"/batch/"+batchID), &batch); err != nil {
		return "", err
	}
	return batch.State, nil
}

func (c *Client) streamBulkResults(ctx context.Context, jobID, batchID string, emit func(types.Record)) error {
	var resultIDs []string
	if err := c.get(ctx, c.asyncURL("job/"+jobID+"/batch/"+batchID+"/result"), &resultIDs); err != nil {
		return errors.Wrap(err, "list bulk result sets")
	}

	for _, resultID := range resultIDs {
		req, err := c.newRequest(ctx, http.MethodGet,
			c.asyncURL("job/"+jobID+"/batch/"+batchID+"/result/"+resultID), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return errors.Wrap(err, "fetch bulk result set")
		}

		var records []types.Record
		decErr := json.NewDecoder(resp.Body).Decode(&records)
		resp.Body.Close()
		if decErr != nil {
			return errors.Wrap(decErr, "decode bulk result set")
		}
		for _, rec := range records {
			emit(rec)
		}
	}
	return nil
}

func (c *Client) closeBulkJob(ctx context.Context, jobID string) {
	body, _ := json.Marshal(map[string]string{"state": "Closed"})
	req, err := c.newRequest(ctx, http.MethodPost, c.asyncURL("job/"+jobID), bytes.NewReader(body))
	if err != nil {
		return
	}
	resp, err := c.do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
