package testutil

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

// MetricsHelper scrapes a Prometheus text endpoint in tests.
type MetricsHelper struct {
	metricsURL string
	client     *http.Client
}

// NewMetricsHelper creates a helper scraping baseURL + "/metrics",
// e.g. an httptest server running the web handler.
func NewMetricsHelper(baseURL string) *MetricsHelper {
	return &MetricsHelper{
		metricsURL: strings.TrimRight(baseURL, "/") + "/metrics",
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ScrapeMetrics scrapes metrics from the metrics endpoint.
func (mh *MetricsHelper) ScrapeMetrics() (string, error) {
	resp, err := mh.client.Get(mh.metricsURL)
	if err != nil {
		return "", fmt.Errorf("failed to scrape metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics body: %w", err)
	}
	return string(body), nil
}

// ParseMetricValue returns the value of the first sample of metricName whose
// labels include every pair in labels. A missing sample is reported as
// found=false, which for counters means zero.
func ParseMetricValue(metrics, metricName string, labels map[string]string) (value float64, found bool, err error) {
	for _, line := range strings.Split(metrics, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, metricName) {
			continue
		}

		// Format: metric_name{label1="value1",label2="value2"} value
		remaining := strings.TrimPrefix(line, metricName)
		sampleLabels := map[string]string{}
		if strings.HasPrefix(remaining, "{") {
			end := strings.Index(remaining, "}")
			if end == -1 {
				return 0, false, fmt.Errorf("invalid metric format: missing closing brace in %q", line)
			}
			for _, pair := range strings.Split(remaining[1:end], ",") {
				parts := strings.SplitN(pair, "=", 2)
				if len(parts) == 2 {
					sampleLabels[strings.TrimSpace(parts[0])] = strings.Trim(parts[1], `"`)
				}
			}
			remaining = remaining[end+1:]
		} else if !strings.HasPrefix(remaining, " ") {
			// A longer metric name sharing the prefix.
			continue
		}

		if !labelsMatch(sampleLabels, labels) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(remaining), 64)
		if err != nil {
			return 0, false, fmt.Errorf("failed to parse value of %q: %w", line, err)
		}
		return v, true, nil
	}
	return 0, false, nil
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricExists fails the test if no sample of metricName matches labels.
func AssertMetricExists(t *testing.T, metrics, metricName string, labels map[string]string) {
	t.Helper()
	_, found, err := ParseMetricValue(metrics, metricName, labels)
	if err != nil {
		t.Fatalf("metric %q: %v", metricName, err)
	}
	if !found {
		t.Fatalf("metric %q with labels %v does not exist", metricName, labels)
	}
}

// AssertMetricIncremented asserts that a counter sample grew between two scrapes.
func AssertMetricIncremented(t *testing.T, before, after, metricName string, labels map[string]string) {
	t.Helper()
	b, _, err := ParseMetricValue(before, metricName, labels)
	if err != nil {
		t.Fatalf("metric %q in before scrape: %v", metricName, err)
	}
	a, found, err := ParseMetricValue(after, metricName, labels)
	if err != nil {
		t.Fatalf("metric %q in after scrape: %v", metricName, err)
	}
	if !found {
		t.Fatalf("metric %q with labels %v does not exist after the operation", metricName, labels)
	}
	if a <= b {
		t.Errorf("metric %q %v did not increment: before=%v, after=%v", metricName, labels, b, a)
	}
}
