package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

type statusResponse struct {
	Metrics domain.SystemMetrics `json:"metrics"`
	Loading bool                 `json:"loading"`
	Error   string               `json:"error,omitempty"`
}

type alertsResponse struct {
	Alerts      []domain.Alert `json:"alerts"`
	UnreadCount int            `json:"unread_count"`
}

func main() {
	serverAddr := flag.String("server", "http://localhost:8080", "Base URL of the AMPDefend API")
	asJSON := flag.Bool("json", false, "Print raw JSON instead of a summary")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var status statusResponse
	if err := getJSON(client, *serverAddr+"/api/v1/status", &status); err != nil {
		log.Fatalf("❌ error fetching status: %v", err)
	}

	var alerts alertsResponse
	if err := getJSON(client, *serverAddr+"/api/v1/alerts", &alerts); err != nil {
		log.Fatalf("❌ error fetching alerts: %v", err)
	}

	if *asJSON {
		out, err := json.MarshalIndent(map[string]interface{}{
			"status": status,
			"alerts": alerts,
		}, "", "  ")
		if err != nil {
			log.Fatalf("❌ error encoding output: %v", err)
		}
		fmt.Println(string(out))
		if status.Error != "" {
			os.Exit(1)
		}
		return
	}

	fmt.Printf("🛡️  AMPDefend status from %s\n\n", *serverAddr)
	fmt.Printf("  System:           %s\n", status.Metrics.SystemStatus)
	fmt.Printf("  Active honeypots: %d\n", status.Metrics.ActiveHoneypots)
	fmt.Printf("  Threats detected: %d\n", status.Metrics.ThreatsDetected)
	fmt.Printf("  Blocked IPs:      %d\n", status.Metrics.BlockedIPs)
	fmt.Printf("  Last updated:     %s\n", status.Metrics.LastUpdated)

	fmt.Printf("\n  Alerts: %d visible, %d unread\n", len(alerts.Alerts), alerts.UnreadCount)
	for _, a := range alerts.Alerts {
		marker := " "
		if !a.Read {
			marker = "*"
		}
		fmt.Printf("  %s [%s] %s - %s\n", marker, a.Severity, a.Title, a.Timestamp.Format(time.RFC3339))
	}

	fmt.Println("------------------------------------------------")
	if status.Error != "" {
		fmt.Printf("❌ FAIL: feed error: %s\n", status.Error)
		os.Exit(1)
	}

	fmt.Println("✅ SUCCESS: feed healthy.")
	os.Exit(0)
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
