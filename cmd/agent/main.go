package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
)

const version = "1.0.0"

// sampleReport matches the server's sample ingestion payload.
type sampleReport struct {
	BatteryPct        float64  `json:"battery_pct"`
	ChargerPowerW     *float64 `json:"charger_power_w,omitempty"`
	OptimizedCharging *bool    `json:"optimized_charging,omitempty"`
}

func main() {
	var args struct {
		Server   string `arg:"-s,--server" default:"http://localhost:9180" help:"SmartCharge server URL"`
		DeviceID string `arg:"-d,--device,required" help:"registered device id to report as"`
		Battery  string `arg:"-b,--battery" default:"BAT0" help:"power-supply name under /sys/class/power_supply"`
		Token    string `arg:"-t,--token" help:"API bearer token"`
		Interval int    `arg:"-i,--interval" default:"60" help:"reporting interval in seconds (0 for single run)"`
		Version  bool   `arg:"--version" help:"show version"`
	}
	arg.MustParse(&args)

	if args.Version {
		fmt.Printf("smartcharge-agent v%s\n", version)
		os.Exit(0)
	}

	log.SetFlags(log.Ltime | log.Ldate)
	log.Printf("🚀 SmartCharge Agent v%s starting...", version)

	battery, err := newBatterySysfs(args.Battery)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("✓ Battery: %s", args.Battery)
	log.Printf("✓ Server: %s", args.Server)
	log.Printf("✓ Device: %s", args.DeviceID)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\n⏹️  Shutting down...")
		cancel()
	}()

	// Run immediately
	sendSample(ctx, args.Server, args.DeviceID, args.Token, battery)

	if args.Interval <= 0 {
		log.Println("✅ Single run complete")
		return
	}

	log.Printf("📊 Reporting every %d seconds", args.Interval)
	ticker := time.NewTicker(time.Duration(args.Interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("👋 Agent stopped")
			return
		case <-ticker.C:
			sendSample(ctx, args.Server, args.DeviceID, args.Token, battery)
		}
	}
}

func sendSample(ctx context.Context, serverURL, deviceID, token string, battery *batterySysfs) {
	r, err := battery.read()
	if err != nil {
		log.Printf("⚠️  Battery read failed: %v", err)
		return
	}

	report := sampleReport{BatteryPct: r.CapacityPct}
	// Charger power only makes sense while charging; a discharging battery
	// reports its own draw through the same attribute.
	if r.Status == "Charging" {
		report.ChargerPowerW = r.PowerW
	}

	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("❌ Failed to marshal sample: %v", err)
		return
	}

	url := fmt.Sprintf("%s/api/devices/%s/samples", serverURL, deviceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("❌ Failed to create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("smartcharge-agent/%s", version))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("❌ Connection failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Server returned %d", resp.StatusCode)
		return
	}

	log.Printf("✅ Sample sent (%.1f%%, %s)", r.CapacityPct, r.Status)
}
