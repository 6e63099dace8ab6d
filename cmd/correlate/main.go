// Command correlate binds every city to its nearest live station and prints
// the bindings.
//
// Usage:
//
//	go run ./cmd/correlate -base-url https://data.example.com/weather/ [-format json] [-city Berlin]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/weather-correlation-sync/internal/adapter/static"
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

func main() {
	baseURL := flag.String("base-url", os.Getenv("DATA_BASE_URL"), "base URL of the static dataset files")
	timeout := flag.Duration("timeout", 30*time.Second, "timeout for each file fetch")
	format := flag.String("format", "table", "output format: table or json")
	city := flag.String("city", "", "only print cities whose name contains this text")
	flag.Parse()

	if *baseURL == "" || (*format != "table" && *format != "json") {
		flag.Usage()
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text"})
	client := static.NewClient(static.ClientConfig{BaseURL: *baseURL, Timeout: *timeout}, logger, observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*2)
	defer cancel()

	if err := run(ctx, client, os.Stdout, *format, *city); err != nil {
		slog.Error("correlate failed", "error", err)
		os.Exit(1)
	}
}

// source is the subset of the static client the command needs.
type source interface {
	Cities(ctx context.Context) (*domain.CityList, error)
	Live(ctx context.Context) (*domain.LiveData, error)
}

func run(ctx context.Context, src source, w io.Writer, format, filter string) error {
	list, err := src.Cities(ctx)
	if err != nil {
		return fmt.Errorf("load cities: %w", err)
	}
	live, err := src.Live(ctx)
	if err != nil {
		return fmt.Errorf("load live feed: %w", err)
	}

	bound := domain.Correlate(list.Cities, live.Stations)
	if filter != "" {
		kept := bound[:0]
		for _, c := range bound {
			if strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter)) {
				kept = append(kept, c)
			}
		}
		bound = kept
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(bound)
	}
	return writeTable(w, bound, live.Stations)
}

func writeTable(w io.Writer, cities []domain.City, stations []domain.Station) error {
	names := make(map[string]string, len(stations))
	for _, s := range stations {
		names[s.ID] = s.Name
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CITY\tLAT\tLON\tSTATION\tNAME\tDISTANCE_KM")
	for _, c := range cities {
		if !c.Bound() {
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t-\t-\t-\n", c.Name, c.Lat, c.Lon)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\t%s\t%.2f\n", c.Name, c.Lat, c.Lon, c.StationID, names[c.StationID], *c.DistanceKm)
	}
	return tw.Flush()
}
