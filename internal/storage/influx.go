package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// InfluxWriter writes points through the InfluxDB 2.x blocking write API
type InfluxWriter struct {
	client influxdb2.Client
}

// NewInfluxWriter creates a client for url authenticated with token.
// The connection is established lazily on the first write.
func NewInfluxWriter(url, token string, timeout time.Duration) *InfluxWriter {
	opts := influxdb2.DefaultOptions()
	if timeout > 0 {
		opts.SetHTTPRequestTimeout(timeoutSeconds(timeout))
	}
	return &InfluxWriter{client: influxdb2.NewClientWithOptions(url, token, opts)}
}

// timeoutSeconds rounds up so a sub-second timeout does not become 0 (no limit).
func timeoutSeconds(d time.Duration) uint {
	return uint(math.Ceil(d.Seconds()))
}

func (w *InfluxWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}

	api := w.client.WriteAPIBlocking(org, bucket)
	if err := api.WritePoint(ctx, influxdb2.NewPoint(p.Measurement, p.Tags, fields, p.Time)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}
