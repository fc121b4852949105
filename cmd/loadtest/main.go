package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const idempotencyHeader = "Idempotency-Key"

type loadMode string

const (
	modeCreate              loadMode = "create"
	modeCreateConfirm       loadMode = "create-confirm"
	modeCreateConfirmCancel loadMode = "create-confirm-cancel"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	userID      int64
	productID   int64
	qty         int32
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                 `json:"started_at"`
	DurationSeconds   float64                   `json:"duration_seconds"`
	TotalScenarios    int64                     `json:"total_scenarios"`
	SuccessScenarios  int64                     `json:"success_scenarios"`
	FailedScenarios   int64                     `json:"failed_scenarios"`
	ErrorRate         float64                   `json:"error_rate"`
	RPS               float64                   `json:"rps"`
	ScenarioLatencyMs latencySummary            `json:"scenario_latency_ms"`
	Endpoints         map[string]endpointReport `json:"endpoints"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

func (c *collector) record(endpoint string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.endpoints[endpoint]
	if !found {
		stats = &endpointStats{statuses: make(map[string]int64)}
		c.endpoints[endpoint] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[fmt.Sprintf("%d", status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Endpoints:       make(map[string]endpointReport, len(c.endpoints)),
	}

	if scenario := c.endpoints["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.endpoints {
		statuses := make(map[string]int64, len(stats.statuses))
		for code, count := range stats.statuses {
			statuses[code] = count
		}
		result.Endpoints[name] = endpointReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "base URL of the storefront API")
	flag.IntVar(&cfg.total, "total", 200, "total scenarios to execute")
	flag.IntVar(&cfg.concurrency, "concurrency", 8, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreateConfirm), "scenario: create|create-confirm|create-confirm-cancel")
	flag.Int64Var(&cfg.userID, "user", 1, "user id for created orders")
	flag.Int64Var(&cfg.productID, "product", 2, "product id for order items")
	var qty int
	flag.IntVar(&qty, "qty", 1, "quantity per order item")
	flag.StringVar(&cfg.outputPath, "output", "", "optional path for the JSON report")
	flag.Parse()

	cfg.qty = int32(qty)
	cfg.mode = loadMode(strings.ToLower(strings.TrimSpace(modeValue)))
	switch cfg.mode {
	case modeCreate, modeCreateConfirm, modeCreateConfirmCancel:
	default:
		return cfg, fmt.Errorf("unsupported mode: %s", modeValue)
	}
	if cfg.total <= 0 {
		return cfg, fmt.Errorf("total must be positive")
	}
	if cfg.concurrency <= 0 {
		return cfg, fmt.Errorf("concurrency must be positive")
	}
	return cfg, nil
}

type orderResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.baseURL, "/")).
		SetTimeout(cfg.timeout).
		SetHeader("Content-Type", "application/json")

	stats := newCollector()
	var next int64

	startedAt := time.Now()
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := atomic.AddInt64(&next, 1)
				if n > int64(cfg.total) {
					return
				}
				runScenario(client, cfg, stats)
			}
		}()
	}
	wg.Wait()
	duration := time.Since(startedAt)

	result := stats.buildReport(startedAt, duration)
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))

	if cfg.outputPath != "" {
		if err := os.WriteFile(cfg.outputPath, encoded, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func runScenario(client *resty.Client, cfg config, stats *collector) {
	started := time.Now()
	order, ok := createOrder(client, cfg, stats)

	if ok && cfg.mode != modeCreate {
		ok = transition(client, stats, order.ID, "confirm")
	}
	if ok && cfg.mode == modeCreateConfirmCancel {
		ok = transition(client, stats, order.ID, "cancel")
	}

	stats.record("scenario", time.Since(started), 0, ok)
}

func createOrder(client *resty.Client, cfg config, stats *collector) (orderResponse, bool) {
	body := map[string]any{
		"user_id": cfg.userID,
		"items": []map[string]any{
			{"product_id": cfg.productID, "qty": cfg.qty},
		},
	}

	var order orderResponse
	started := time.Now()
	resp, err := client.R().
		SetHeader(idempotencyHeader, uuid.NewString()).
		SetBody(body).
		SetResult(&order).
		Post("/api/orders")
	latency := time.Since(started)

	if err != nil {
		stats.record("create", latency, 0, false)
		return orderResponse{}, false
	}
	ok := resp.StatusCode() == 201
	stats.record("create", latency, resp.StatusCode(), ok)
	return order, ok
}

func transition(client *resty.Client, stats *collector, orderID int64, action string) bool {
	started := time.Now()
	resp, err := client.R().Put(fmt.Sprintf("/api/orders/%d/%s", orderID, action))
	latency := time.Since(started)

	if err != nil {
		stats.record(action, latency, 0, false)
		return false
	}
	// 400 при нехватке остатка — ожидаемый исход под нагрузкой, но сценарий
	// считается неуспешным, чтобы это было видно в отчёте.
	ok := resp.StatusCode() == 200
	stats.record(action, latency, resp.StatusCode(), ok)
	return ok
}

func ratio(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func buildLatencySummary(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
