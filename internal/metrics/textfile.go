// Package metrics writes run results as node_exporter textfile collector
// metrics.
package metrics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

// Metric names
const (
	MetricLastRunTimestamp = "autoregister_last_run_timestamp_seconds"
	MetricLastRunSuccess   = "autoregister_last_run_success"
	MetricRecordsCreated   = "autoregister_records_created"
	MetricDeviceRegistered = "autoregister_device_registered"
)

// RunSummary is what one run reports
type RunSummary struct {
	Timestamp  time.Time
	Success    bool
	Created    int
	Hostname   string
	SiteID     int
	Registered bool // device exists in the inventory after the run
}

// Families renders the summary as metric families in a stable order
func Families(s RunSummary) []*dto.MetricFamily {
	families := []*dto.MetricFamily{
		gauge(MetricLastRunTimestamp, "Unix time of the last registration run.",
			float64(s.Timestamp.Unix())+float64(s.Timestamp.Nanosecond())/1e9, nil),
		gauge(MetricLastRunSuccess, "Whether the last registration run succeeded.",
			boolValue(s.Success), nil),
		gauge(MetricRecordsCreated, "Inventory records created by the last registration run.",
			float64(s.Created), nil),
	}

	if s.Hostname != "" {
		families = append(families, gauge(MetricDeviceRegistered,
			"Whether the host is registered as a device in the site.",
			boolValue(s.Registered),
			map[string]string{"hostname": s.Hostname, "site_id": strconv.Itoa(s.SiteID)}))
	}
	return families
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func gauge(name, help string, value float64, labels map[string]string) *dto.MetricFamily {
	metricType := dto.MetricType_GAUGE
	metric := &dto.Metric{Gauge: &dto.Gauge{Value: &value}}

	// Label order must be stable for the text format
	for _, key := range []string{"hostname", "site_id"} {
		v, ok := labels[key]
		if !ok {
			continue
		}
		k, val := key, v
		metric.Label = append(metric.Label, &dto.LabelPair{Name: &k, Value: &val})
	}

	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   &metricType,
		Metric: []*dto.Metric{metric},
	}
}

// Encode writes the families in the Prometheus text exposition format
func Encode(families []*dto.MetricFamily) ([]byte, error) {
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// TextfileWriter replaces a .prom file atomically so the collector never
// reads a partial file
type TextfileWriter struct {
	path   string
	logger *zap.Logger
}

// NewTextfileWriter creates a writer for path
func NewTextfileWriter(path string, logger *zap.Logger) *TextfileWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextfileWriter{path: path, logger: logger}
}

// Write encodes the summary and renames it into place
func (w *TextfileWriter) Write(s RunSummary) error {
	data, err := Encode(Families(s))
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// node_exporter usually runs as another user
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("failed to rename metrics file: %w", err)
	}

	w.logger.Debug("Metrics textfile written",
		zap.String("path", w.path),
		zap.Int("bytes", len(data)))
	return nil
}
