// Package shipstation fetches order and shipment records from the source
// REST API, driving the executor across date-windowed, page-numbered list
// queries until exhaustion.
package shipstation

import (
	"context"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/maxysadm-GH/VHC/pkg/clients"
	"github.com/maxysadm-GH/VHC/pkg/config"
	"github.com/maxysadm-GH/VHC/pkg/metrics"
	"github.com/maxysadm-GH/VHC/pkg/models"
)

// target labels source requests in logs and metrics.
const target = "shipstation"

// modifiedWindowDays extends the modified-orders window past the target
// date to capture delayed status updates. The resulting overlap across
// consecutive daily runs is absorbed by the sink's idempotent order keys.
const modifiedWindowDays = 2

// Time-of-day suffixes for the source's date-range parameters, in the
// source's local convention.
const (
	dayStartSuffix = "T00:00:00.0000000"
	dayEndSuffix   = "T23:59:59.9999999"
)

// Client fetches paginated record lists from the source API.
type Client struct {
	exec     *clients.Executor
	baseURL  string
	auth     clients.BasicAuth
	pageSize int
	logger   *zap.Logger
}

// NewClient creates a source client from the source configuration.
func NewClient(cfg config.SourceConfig, exec *clients.Executor, logger *zap.Logger) *Client {
	return &Client{
		exec:     exec,
		baseURL:  cfg.BaseURL,
		auth:     clients.BasicAuth{Username: cfg.APIKey, Password: cfg.APISecret},
		pageSize: cfg.PageSize,
		logger:   logger.With(zap.String("component", "shipstation")),
	}
}

// listPage is the envelope around one page of a list response. Orders and
// shipments share the shape; only the list key differs.
type listPage struct {
	Orders    []models.RawRecord `json:"orders"`
	Shipments []models.RawRecord `json:"shipments"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	Pages     int                `json:"pages"`
}

// dateWindow is one inclusive date-range query, expressed with the source's
// field-name pair for either create-date or modify-date semantics.
type dateWindow struct {
	startField string
	endField   string
	start      string
	end        string
}

// createdWindow covers exactly the target date.
func createdWindow(day time.Time) dateWindow {
	d := day.Format(config.DateFormat)
	return dateWindow{
		startField: "createDateStart",
		endField:   "createDateEnd",
		start:      d + dayStartSuffix,
		end:        d + dayEndSuffix,
	}
}

// modifiedWindow covers the target date plus the trailing update window.
func modifiedWindow(day time.Time) dateWindow {
	return dateWindow{
		startField: "modifyDateStart",
		endField:   "modifyDateEnd",
		start:      day.Format(config.DateFormat) + dayStartSuffix,
		end:        day.AddDate(0, 0, modifiedWindowDays).Format(config.DateFormat) + dayEndSuffix,
	}
}

// FetchCreatedOrders returns all orders created on the target date, in the
// source's native order. An empty result is valid: nothing to sync.
func (c *Client) FetchCreatedOrders(ctx context.Context, day time.Time) ([]models.RawRecord, error) {
	records, err := c.fetchAll(ctx, "/orders", createdWindow(day), func(p *listPage) []models.RawRecord {
		return p.Orders
	})
	metrics.RecordsFetchedTotal.WithLabelValues(string(models.KindCreatedOrders)).Add(float64(len(records)))
	return records, err
}

// FetchModifiedOrders returns all orders modified within the trailing
// window starting at the target date.
func (c *Client) FetchModifiedOrders(ctx context.Context, day time.Time) ([]models.RawRecord, error) {
	records, err := c.fetchAll(ctx, "/orders", modifiedWindow(day), func(p *listPage) []models.RawRecord {
		return p.Orders
	})
	metrics.RecordsFetchedTotal.WithLabelValues(string(models.KindModifiedOrders)).Add(float64(len(records)))
	return records, err
}

// FetchShipments returns all shipments created on the target date.
func (c *Client) FetchShipments(ctx context.Context, day time.Time) ([]models.RawRecord, error) {
	records, err := c.fetchAll(ctx, "/shipments", createdWindow(day), func(p *listPage) []models.RawRecord {
		return p.Shipments
	})
	metrics.RecordsFetchedTotal.WithLabelValues(string(models.KindShipments)).Add(float64(len(records)))
	return records, err
}

// fetchAll walks pages from 1 until the source reports no more pages or a
// page comes back empty. On a terminal executor failure it returns what it
// has accumulated so far along with the error; the caller decides whether
// the partial result is worth pushing.
func (c *Client) fetchAll(ctx context.Context, path string, window dateWindow, pick func(*listPage) []models.RawRecord) ([]models.RawRecord, error) {
	var all []models.RawRecord

	c.logger.Info("fetching records",
		zap.String("path", path),
		zap.String("window_start", window.start),
		zap.String("window_end", window.end))

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set(window.startField, window.start)
		query.Set(window.endField, window.end)
		query.Set("pageSize", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))

		resp, err := c.exec.Do(ctx, &clients.Request{
			Target:    target,
			Method:    "GET",
			URL:       c.baseURL + path,
			Query:     query,
			BasicAuth: &c.auth,
		})
		if err != nil {
			c.logger.Warn("page fetch failed, keeping partial result",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Int("fetched", len(all)),
				zap.Error(err))
			return all, err
		}

		var envelope listPage
		if err := json.Unmarshal(resp.Body, &envelope); err != nil {
			c.logger.Warn("malformed page response, keeping partial result",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Error(err))
			return all, err
		}

		records := pick(&envelope)
		if len(records) == 0 {
			break
		}
		all = append(all, records...)

		if page >= envelope.Pages {
			break
		}
	}

	c.logger.Info("fetch complete",
		zap.String("path", path),
		zap.Int("records", len(all)))
	return all, nil
}
