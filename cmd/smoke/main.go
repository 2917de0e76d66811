package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("MORALGRAPH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println("Starting smoke test against", baseURL)

	fmt.Println("1. Listing runs...")
	if _, ok := get(client, baseURL+"/runs"); !ok {
		fmt.Println("FAILED: list runs")
		os.Exit(1)
	}
	fmt.Println("PASSED: list runs")

	fmt.Println("2. Fetching latest finished run...")
	body, ok := get(client, baseURL+"/runs/latest")
	if !ok {
		fmt.Println("FAILED: latest run (has a deduplication run finished?)")
		os.Exit(1)
	}
	var run struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &run); err != nil || run.ID == 0 {
		fmt.Printf("FAILED: latest run returned %s\n", string(body))
		os.Exit(1)
	}
	fmt.Println("PASSED: latest run", run.ID)

	fmt.Println("3. Reading the canonical graph...")
	base := fmt.Sprintf("%s/runs/%d", baseURL, run.ID)
	for _, endpoint := range []string{"/cards", "/contexts", "/edges", "/graph"} {
		if _, ok := get(client, base+endpoint); !ok {
			fmt.Println("FAILED:", endpoint)
			os.Exit(1)
		}
		fmt.Println("PASSED:", endpoint)
	}
}

func get(client *http.Client, url string) ([]byte, bool) {
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}

	if len(respBody) > 200 {
		fmt.Printf("Response: %s...\n", string(respBody[:200]))
	} else {
		fmt.Printf("Response: %s\n", string(respBody))
	}
	return respBody, true
}
