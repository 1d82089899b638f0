package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callwatch/internal/config"
	"callwatch/internal/reporter"
	"callwatch/internal/ringba"
	"callwatch/internal/schedule"
	"callwatch/internal/sheets"
	"callwatch/internal/slack"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateReporter(); err != nil {
		log.Fatalf("reporter config: %v", err)
	}

	sched := schedule.New(scheduleOptions(cfg.Schedule))
	provider := ringba.NewClient(cfg.RingbaBaseURL, cfg.RingbaToken, cfg.RingbaAccountID, cfg.FetchTimeout)
	sales := sheets.NewClient(cfg.SheetsBaseURL, cfg.SheetsAPIKey, cfg.SpreadsheetID, cfg.SheetName, cfg.FetchTimeout)
	notifier := slack.NewClient(cfg.SlackWebhookURL, cfg.FetchTimeout)

	driver := reporter.NewDriver(sched, provider, sales, notifier, reporter.DriverOptions{
		FetchTimeout: cfg.FetchTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serveMetrics(cfg.ReporterMetricsAddr)
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Println("shutting down reporter...")
		cancel()
	}()

	driver.Run(ctx)
	log.Println("reporter shutdown complete")
}

func scheduleOptions(sc config.ScheduleConfig) schedule.Options {
	return schedule.Options{
		TriggerHours: sc.TriggerHours,
		OpenHour:     sc.OpenHour,
		CloseHour:    sc.CloseHour,
		SettleHour:   sc.SettleHour,
		SettleBuffer: time.Duration(sc.SettleBufferMinutes) * time.Minute,
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("reporter metrics server failed: %v", err)
	}
}
