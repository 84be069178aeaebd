// Package databox delivers flat records to the metrics-ingestion sink in
// size-capped chunks and verifies ingestion outcomes.
//
// Delivery is at-least-once: the modified-order window overlaps across
// consecutive daily runs, and re-pushed rows are absorbed because the sink
// treats each dataset's record identifier (order ID, item key, shipment ID)
// as an idempotent upsert key. That contract is assumed here, not verified.
package databox

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/maxysadm-GH/VHC/pkg/clients"
	"github.com/maxysadm-GH/VHC/pkg/config"
	"github.com/maxysadm-GH/VHC/pkg/metrics"
	"github.com/maxysadm-GH/VHC/pkg/models"
)

// target labels sink requests in logs and metrics.
const target = "databox"

// Receipt is the opaque ingestion identifier returned for one pushed chunk.
// Receipts live only for the duration of a push/verify cycle.
type Receipt string

// Client pushes record batches to sink datasets and polls their status.
type Client struct {
	exec        *clients.Executor
	baseURL     string
	apiToken    string
	chunkSize   int
	settleDelay time.Duration
	logger      *zap.Logger

	// sleep is injectable so tests never wait on the wall clock
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a sink client from the sink configuration.
func NewClient(cfg config.SinkConfig, exec *clients.Executor, logger *zap.Logger) *Client {
	return &Client{
		exec:        exec,
		baseURL:     cfg.BaseURL,
		apiToken:    cfg.APIToken,
		chunkSize:   cfg.ChunkSize,
		settleDelay: cfg.VerificationDelay,
		logger:      logger.With(zap.String("component", "databox")),
		sleep:       clients.SleepWithContext,
	}
}

// pushResponse carries the ingestion identifier under either of the field
// names the sink is known to use.
type pushResponse struct {
	ID          string `json:"id"`
	IngestionID string `json:"ingestionId"`
}

// verifyResponse is the per-ingestion status report.
type verifyResponse struct {
	Status string `json:"status"`
	Errors []any  `json:"errors"`
}

// Push partitions records into contiguous chunks of at most the configured
// size and pushes each one. It returns the receipts of accepted chunks. A
// chunk that exhausts the executor's retry budget is dropped with a logged
// warning; the data is not retried again, and the loss stays visible in
// logs and metrics rather than aborting the run.
func (c *Client) Push(ctx context.Context, datasetID string, records []models.FlatRecord) []Receipt {
	if len(records) == 0 {
		return nil
	}

	c.logger.Info("pushing records",
		zap.String("dataset", datasetID),
		zap.Int("records", len(records)),
		zap.Int("chunk_size", c.chunkSize))

	var receipts []Receipt
	for start := 0; start < len(records); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		chunkIndex := start/c.chunkSize + 1

		resp, err := c.exec.Do(ctx, &clients.Request{
			Target: target,
			Method: "POST",
			URL:    c.pushURL(datasetID),
			Headers: map[string]string{
				"x-api-key": c.apiToken,
			},
			Body: map[string]any{"records": chunk},
		})
		if err != nil {
			metrics.ChunksDroppedTotal.WithLabelValues(datasetID).Inc()
			c.logger.Warn("chunk push failed, dropping chunk",
				zap.String("dataset", datasetID),
				zap.Int("chunk", chunkIndex),
				zap.Int("records", len(chunk)),
				zap.Error(err))
			continue
		}

		var parsed pushResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			c.logger.Warn("unparseable push response",
				zap.String("dataset", datasetID),
				zap.Int("chunk", chunkIndex),
				zap.Error(err))
			continue
		}

		receipt := parsed.ID
		if receipt == "" {
			receipt = parsed.IngestionID
		}
		if receipt != "" {
			receipts = append(receipts, Receipt(receipt))
		}

		metrics.RecordsPushedTotal.WithLabelValues(datasetID).Add(float64(len(chunk)))
		c.logger.Info("chunk pushed",
			zap.String("dataset", datasetID),
			zap.Int("chunk", chunkIndex),
			zap.Int("records", len(chunk)))
	}

	return receipts
}

// Verify polls each receipt's ingestion status once, after a settle wait
// for the sink's asynchronous processing. It is purely observational: a
// non-success status or embedded errors are logged in full detail but never
// retried or escalated.
func (c *Client) Verify(ctx context.Context, datasetID string, receipts []Receipt) {
	if len(receipts) == 0 {
		return
	}

	c.logger.Info("verifying ingestions",
		zap.String("dataset", datasetID),
		zap.Int("receipts", len(receipts)))

	if err := c.sleep(ctx, c.settleDelay); err != nil {
		c.logger.Warn("verification cancelled during settle wait", zap.Error(err))
		return
	}

	for _, receipt := range receipts {
		resp, err := c.exec.Do(ctx, &clients.Request{
			Target: target,
			Method: "GET",
			URL:    c.verifyURL(datasetID, receipt),
			Headers: map[string]string{
				"x-api-key": c.apiToken,
			},
		})
		if err != nil {
			c.logger.Warn("ingestion status poll failed",
				zap.String("dataset", datasetID),
				zap.String("receipt", string(receipt)),
				zap.Error(err))
			continue
		}

		var status verifyResponse
		if err := json.Unmarshal(resp.Body, &status); err != nil {
			c.logger.Warn("unparseable ingestion status",
				zap.String("dataset", datasetID),
				zap.String("receipt", string(receipt)),
				zap.Error(err))
			continue
		}

		fields := []zap.Field{
			zap.String("dataset", datasetID),
			zap.String("receipt", string(receipt)),
			zap.String("status", status.Status),
		}
		if len(status.Errors) > 0 {
			fields = append(fields, zap.Any("errors", status.Errors))
		}

		if processed(status.Status) && len(status.Errors) == 0 {
			c.logger.Info("ingestion processed", fields...)
		} else {
			c.logger.Warn("ingestion not processed", fields...)
		}
	}
}

// processed reports whether the sink considers an ingestion complete.
func processed(status string) bool {
	switch strings.ToLower(status) {
	case "processed", "ok":
		return true
	}
	return false
}

func (c *Client) pushURL(datasetID string) string {
	return fmt.Sprintf("%s/datasets/%s/data", c.baseURL, datasetID)
}

func (c *Client) verifyURL(datasetID string, receipt Receipt) string {
	return fmt.Sprintf("%s/datasets/%s/ingestions/%s", c.baseURL, datasetID, receipt)
}
