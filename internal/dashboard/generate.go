// Package dashboard renders Grafana dashboards for the metrics nexus writes
// to GreptimeDB.
package dashboard

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"nexus-sim/internal/metrics"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Panel is one time series panel. PerService splits the series by
// service_id.
type Panel struct {
	Title      string
	Type       string
	Metric     string
	Unit       string
	PerService bool
	X, Y, W    int
}

// Options controls Render.
type Options struct {
	// DatasourceUID is the Grafana UID of the GreptimeDB (MySQL protocol)
	// datasource.
	DatasourceUID string
	Title         string
	Table         string
}

// DefaultPanels covers the service, inference and platform metrics.
var DefaultPanels = []Panel{
	{Title: "System Integrity", Type: "timeseries", Metric: "system.integrity", Unit: "percent", X: 0, Y: 0, W: 12},
	{Title: "WebSocket Connections", Type: "timeseries", Metric: "websocket.connections", Unit: "short", X: 12, Y: 0, W: 12},
	{Title: "Service Latency", Type: "timeseries", Metric: "service.latency", Unit: "ms", PerService: true, X: 0, Y: 8, W: 12},
	{Title: "Service Error Rate", Type: "timeseries", Metric: "service.error_rate", Unit: "percent", PerService: true, X: 12, Y: 8, W: 12},
	{Title: "Throughput", Type: "timeseries", Metric: "service.throughput", Unit: "reqps", PerService: true, X: 0, Y: 16, W: 12},
	{Title: "LLM Cost", Type: "timeseries", Metric: "llm.cost", Unit: "currencyUSD", X: 12, Y: 16, W: 12},
	{Title: "Alerts", Type: "barchart", Metric: "alert.count", Unit: "short", PerService: true, X: 0, Y: 24, W: 12},
	{Title: "Remediations", Type: "barchart", Metric: "remediation.count", Unit: "short", PerService: true, X: 12, Y: 24, W: 12},
}

func query(opts Options, p Panel) string {
	metric := metrics.Prefix + "." + p.Metric
	if p.PerService {
		return fmt.Sprintf("SELECT ts AS time, service_id AS metric, value FROM %s WHERE metric = '%s' AND $__timeFilter(ts) ORDER BY ts",
			opts.Table, metric)
	}
	return fmt.Sprintf("SELECT ts AS time, value FROM %s WHERE metric = '%s' AND $__timeFilter(ts) ORDER BY ts",
		opts.Table, metric)
}

// Render writes every dashboard template to outDir.
func Render(outDir string, opts Options) error {
	if opts.DatasourceUID == "" {
		return errors.New("dashboard: datasource uid is required")
	}
	if opts.Title == "" {
		opts.Title = "NEXUS PROTOCOL"
	}
	if opts.Table == "" {
		opts.Table = metrics.DefaultGreptimeTable
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"query": query,
		"json": func(s string) (string, error) {
			b, err := json.Marshal(s)
			return string(b), err
		},
	}
	tpl, err := template.New("dashboards").Funcs(funcMap).ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	data := renderData{Options: opts, Panels: DefaultPanels}
	for _, t := range tpl.Templates() {
		if !strings.HasSuffix(t.Name(), ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(t.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

type renderData struct {
	Options
	Panels []Panel
}
