package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callwatch/internal/ch"
	"callwatch/internal/config"
	"callwatch/internal/httpx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := ch.New(ctx, cfg.ClickHouseDSN)
	if err != nil {
		log.Fatalf("clickhouse: %v", err)
	}
	defer client.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.NewHTTPMetrics("query_api").Handler())

	router.GET("/healthz", func(c *gin.Context) {
		if err := client.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/v1/calls/by-publisher", func(c *gin.Context) {
		handleByPublisher(c, client)
	})
	router.GET("/v1/calls/volume", func(c *gin.Context) {
		handleVolume(c, client)
	})
	router.GET("/v1/calls/count", func(c *gin.Context) {
		handleCount(c, client)
	})

	server := &http.Server{
		Addr:    cfg.QueryAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("query server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down query API...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func handleByPublisher(c *gin.Context, client *ch.Client) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	rows, err := client.CallsByPublisher(ctx, from, to)
	if err != nil {
		log.Printf("calls by publisher: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "publishers": rows})
}

func handleVolume(c *gin.Context, client *ch.Client) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	series, err := client.DailyVolume(ctx, from, to)
	if err != nil {
		log.Printf("daily volume: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "series": series})
}

func handleCount(c *gin.Context, client *ch.Client) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	total, err := client.CountCalls(ctx)
	if err != nil {
		log.Printf("count calls: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_calls": total})
}

// parseRange reads from/to query params as YYYY-MM-DD dates, defaulting to
// the trailing seven days. The range is half-open [from, to).
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	to := now
	from := now.AddDate(0, 0, -7)

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return time.Time{}, time.Time{}, false
		}
		// Include the whole end day.
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must precede to"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
