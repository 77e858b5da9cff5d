package database

import (
	"context"
	"fmt"
	"time"

	"polybench/internal/config"
	"polybench/internal/host"
	"polybench/internal/logging"
	"polybench/internal/reporting"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

// InfluxDBClient is an optional sink for per-implementation benchmark
// summaries, used for long-term trend dashboards.
type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

func NewInfluxDBClient(cfg config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Password)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}

	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": health.Message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	writeAPI := client.WriteAPIBlocking(cfg.Org, cfg.Name)
	queryAPI := client.QueryAPI(cfg.Org)

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Name,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Name,
		org:      cfg.Org,
	}, nil
}

// WriteRunSummary writes one point per implementation plus a run metadata
// point, all tagged with the run checksum.
func (idb *InfluxDBClient) WriteRunSummary(ctx context.Context, runID, example string, report *reporting.BenchmarkReport, hostConfig *host.HostConfig) error {
	now := time.Now()
	var points []*write.Point

	for _, result := range report.Results {
		s := result.Statistics
		fields := map[string]interface{}{
			"mean_ns":            s.Mean,
			"median_ns":          s.Median,
			"std_dev_ns":         s.StdDev,
			"min_ns":             s.Min,
			"max_ns":             s.Max,
			"p95_ns":             s.Distribution.Percentiles.P95,
			"p99_ns":             s.Distribution.Percentiles.P99,
			"sample_count":       s.SampleCount,
			"outlier_percentage": s.Outliers.Percentage,
		}

		if result.Memory != nil {
			fields["peak_rss_bytes"] = int64(result.Memory.PeakRSSBytes)
			fields["memory_leak_bytes"] = result.Memory.MemoryLeakBytes
		}
		if result.Binary != nil {
			fields["binary_size_bytes"] = int64(result.Binary.TotalSizeBytes)
		}
		if result.PerfCounters != nil {
			if ipc := result.PerfCounters.IPC(); ipc > 0 {
				fields["instructions_per_cycle"] = ipc
			}
			if rate := result.PerfCounters.CacheMissRate(); rate > 0 {
				fields["cache_miss_rate"] = rate
			}
		}

		points = append(points, influxdb2.NewPoint("benchmark_results",
			map[string]string{
				"run_id":         runID,
				"example":        example,
				"implementation": result.Name,
			},
			fields,
			now))
	}

	metaFields := map[string]interface{}{
		"implementations": len(report.Results),
		"fastest":         report.Summary.Fastest,
		"iterations":      report.Configuration.Iterations,
		"suite_version":   report.Metadata.SuiteVersion,
	}
	if hostConfig != nil {
		metaFields["hostname"] = hostConfig.Hostname
		metaFields["cpu_model"] = hostConfig.CPUModel
		metaFields["kernel_version"] = hostConfig.KernelVersion
		metaFields["total_cores"] = hostConfig.TotalCores
	}
	points = append(points, influxdb2.NewPoint("benchmark_runs",
		map[string]string{
			"run_id":  runID,
			"example": example,
		},
		metaFields,
		now))

	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}

	return nil
}

// QueryMeanHistory returns the stored mean durations for one implementation
// and example over the lookback window, oldest first.
func (idb *InfluxDBClient) QueryMeanHistory(ctx context.Context, example, implementation string, lookback time.Duration) ([]float64, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%ds)
		|> filter(fn: (r) => r._measurement == "benchmark_results")
		|> filter(fn: (r) => r.example == "%s" and r.implementation == "%s")
		|> filter(fn: (r) => r._field == "mean_ns")
		|> sort(columns: ["_time"])
	`, idb.bucket, int(lookback.Seconds()), example, implementation)

	result, err := idb.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mean history: %w", err)
	}
	defer result.Close()

	var means []float64
	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			means = append(means, v)
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query results: %w", result.Err())
	}

	return means, nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}
