package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	barcode := flag.String("barcode", "TEST1", "box barcode to scan")
	station := flag.Int("station", 1, "scanning station id")
	mode := flag.String("mode", "Normal", "order mode (Normal|Custom)")

	// 连击测试参数：同一工位同一条码连发，应只放行第一下
	burst := flag.Int("burst", 20, "rapid fire scans of the same barcode")
	concurrency := flag.Int("c", 20, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	// 1) 去重测试：同条码连击，只应建 1 个订单，其余返回 duplicate
	fmt.Printf("start dedupe test: barcode=%s station=%d burst=%d\n", *barcode, *station, *burst)
	results := runScans(client, *baseURL, *barcode, *station, *mode, *burst, *concurrency)
	printSummary("dedupe", results)

	// 2) 限流测试：不同条码高频扫，容易打到 429
	// 默认限流是 30/s，想观察 429 可临时调低 SCAN_RATE_LIMIT 再测。
	fmt.Println("\nstart rate limit test: 100 distinct barcodes, concurrency 50")
	results2 := runDistinctScans(client, *baseURL, *station, *mode, 100, 50)
	printSummary("rate_limit", results2)
}

func runScans(client *http.Client, baseURL, barcode string, station int, mode string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = scanOnce(client, baseURL, barcode, station, mode)
		}(i)
	}

	wg.Wait()
	return results
}

func runDistinctScans(client *http.Client, baseURL string, station int, mode string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = scanOnce(client, baseURL, fmt.Sprintf("SIM-%d", idx), station, mode)
		}(i)
	}

	wg.Wait()
	return results
}

func scanOnce(client *http.Client, baseURL, barcode string, station int, mode string) Result {
	req := struct {
		Barcode   string `json:"barcode"`
		StationID int    `json:"station_id"`
		Mode      string `json:"mode"`
	}{Barcode: barcode, StationID: station, Mode: mode}

	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/scan", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 403, 404, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
