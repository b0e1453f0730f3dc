package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/mysmartbike"
)

type bikesResponse struct {
	Bikes     []mysmartbike.Bike `json:"bikes"`
	FetchedAt time.Time          `json:"fetched_at"`
}

type bikeResponse struct {
	Bike      mysmartbike.Bike `json:"bike"`
	FetchedAt time.Time        `json:"fetched_at"`
}

func bikesCmd(ctx context.Context, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		bikesListCmd(ctx, args[1:])
	case "describe":
		bikesDescribeCmd(ctx, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func bikesListCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("bikes list", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	var resp bikesResponse
	if err := getJSON(ctx, "/api/v1/bikes", &resp); err != nil {
		fatal("bikes list", err)
	}

	if *jsonOut {
		printJSON(resp)
		return
	}

	rows := [][]string{{"SERIAL", "BRAND", "MODEL", "SOC", "ODOMETER", "LAST POSITION"}}
	for _, bike := range resp.Bikes {
		rows = append(rows, []string{
			bike.Serial,
			bike.Brand,
			bike.Model,
			formatPercent(bike.StateOfCharge),
			formatKilometers(bike.OdometryMeters),
			formatTime(bike.LastPosition),
		})
	}
	printTable(rows)
	fmt.Printf("\nfetched at %s\n", resp.FetchedAt.Local().Format(time.RFC3339))
}

func bikesDescribeCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("bikes describe", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 1 {
		fatal("describe", fmt.Errorf("missing bike serial"))
	}

	var resp bikeResponse
	if err := getJSON(ctx, "/api/v1/bikes/"+remaining[0], &resp); err != nil {
		fatal("describe bike", err)
	}

	if *jsonOut {
		printJSON(resp)
		return
	}

	bike := resp.Bike
	fmt.Printf("serial: %s\n", bike.Serial)
	fmt.Printf("brand: %s\n", bike.Brand)
	fmt.Printf("model: %s\n", bike.Model)
	fmt.Printf("odometer: %s\n", formatKilometers(bike.OdometryMeters))
	fmt.Printf("state of charge: %s\n", formatPercent(bike.StateOfCharge))
	fmt.Printf("remaining capacity: %s\n", formatWattHours(bike.RemainingCapacity))
	if bike.HasPosition() {
		fmt.Printf("position: %.6f, %.6f\n", *bike.Latitude, *bike.Longitude)
	}
	fmt.Printf("last position: %s\n", formatTime(bike.LastPosition))
	fmt.Printf("fetched at: %s\n", resp.FetchedAt.Local().Format(time.RFC3339))
}

func statusCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	var report health.Report
	if err := getJSON(ctx, "/health", &report); err != nil {
		fatal("status", err)
	}

	if *jsonOut {
		printJSON(report)
		return
	}

	rows := [][]string{{"COMPONENT", "STATUS", "MESSAGE"}}
	for _, component := range report.Components {
		rows = append(rows, []string{component.ID, string(component.Status), component.Message})
	}
	printTable(rows)
	fmt.Printf("\noverall: %s\n", report.Overall)
}

func getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveHTTPBase()+path, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	// /health answers 503 with a valid body when a component errors.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func formatPercent(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *value)
}

func formatWattHours(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f Wh", *value)
}

func formatKilometers(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
