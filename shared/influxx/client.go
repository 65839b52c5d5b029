package influxx

import (
	"context"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"mold-inspection-backend/shared/config"
)

type Client struct {
	client influxdb2.Client
	org    string
	bucket string
}

func New(cfg config.Config) (*Client, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, errors.New("INFLUX_URL/INFLUX_TOKEN/INFLUX_ORG/INFLUX_BUCKET are required")
	}
	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.InfluxTimeoutMS))
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	return &Client{client: client, org: cfg.InfluxOrg, bucket: cfg.InfluxBucket}, nil
}

func (c *Client) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	p := influxdb2.NewPoint(measurement, tags, fields, ts)
	writeAPI := c.client.WriteAPIBlocking(c.org, c.bucket)
	return writeAPI.WritePoint(ctx, p)
}

// WriteUsageSample records a cumulative usage reading for one piece of equipment.
func (c *Client) WriteUsageSample(ctx context.Context, equipmentID string, usageCount int64, ts time.Time) error {
	return c.WritePoint(ctx, "equipment_usage",
		map[string]string{"equipment_id": equipmentID},
		map[string]any{"usage_count": usageCount},
		ts)
}

// WriteScheduleStatus records the evaluated status and overdue magnitude of a
// schedule so drift is queryable over time.
func (c *Client) WriteScheduleStatus(ctx context.Context, equipmentID string, cycleCode string, status string, magnitude float64, ts time.Time) error {
	return c.WritePoint(ctx, "schedule_status",
		map[string]string{"equipment_id": equipmentID, "cycle_code": cycleCode, "status": status},
		map[string]any{"overdue_magnitude": magnitude},
		ts)
}

func (c *Client) Query(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("influx client not initialized")
	}
	return c.client.QueryAPI(c.org).Query(ctx, flux)
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
