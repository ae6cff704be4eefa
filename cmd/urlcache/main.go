package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ostrenko/memofn"
	"github.com/ostrenko/memofn/metrics"
)

func fetchDataFromRemote(url string) (string, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

func main() {
	m := metrics.NewMetrics("urlcache")
	srv := metrics.NewMetricsServer(":9090")
	srv.StartAsync()
	defer srv.Stop()

	cachedFn := memofn.NewCachedFunction(fetchDataFromRemote, m.Hooks(), memofn.WithTTL(time.Minute))

	url := "https://www.example.com/"
	fmt.Printf("[%v] Starting first request to %s...\n", time.Now().Truncate(time.Second), url)
	data, err := cachedFn(url)
	if err != nil {
		fmt.Println("Error:", err)
	}
	fmt.Printf("[%v] First request completed, received %d bytes\n", time.Now().Truncate(time.Second), len(data))

	fmt.Printf("[%v] Starting second request to %s...\n", time.Now().Truncate(time.Second), url)
	data, err = cachedFn(url)
	if err != nil {
		fmt.Println("Error:", err)
	}
	fmt.Printf("[%v] Second request completed from cache, received %d bytes\n", time.Now().Truncate(time.Second), len(data))
}
