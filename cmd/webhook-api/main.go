package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"callwatch/internal/auth"
	"callwatch/internal/buffer"
	"callwatch/internal/config"
	"callwatch/internal/dedup"
	"callwatch/internal/httpx"
	ikafka "callwatch/internal/kafka"
	"callwatch/internal/model"
	"callwatch/internal/util"
)

const signatureHeader = "X-Ringba-Signature"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("starting webhook API on %s", cfg.WebhookAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	store := dedup.NewRedisStore(redisClient, cfg.DedupTTL)

	writer := ikafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopicRaw)
	defer writer.Close()
	sink := ikafka.NewCallSink(writer)

	buf := buffer.New(store, sink, buffer.Options{
		Capacity:      cfg.BufferCapacity,
		DrainBatch:    cfg.BufferDrainBatch,
		FlushInterval: cfg.BufferFlushInterval,
	})
	go buf.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.NewHTTPMetrics("webhook_api").Handler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/debug/stats", func(c *gin.Context) {
		handleStats(c, store, buf)
	})
	router.POST("/v1/ringba-webhook", func(c *gin.Context) {
		handleWebhook(c, cfg, buf)
	})

	server := &http.Server{
		Addr:    cfg.WebhookAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("webhook server failed: %v", err)
		}
	}()

	graceful(server, cancel)
}

// handleWebhook validates the inbound call event and submits it to the
// ingestion buffer. Only a structurally invalid payload (bad JSON, missing
// call id, bad signature) surfaces as an error to the caller; everything
// downstream of acceptance fails silently-but-logged.
func handleWebhook(c *gin.Context, cfg config.Config, buf *buffer.Buffer) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if cfg.WebhookSecret != "" {
		sig := c.GetHeader(signatureHeader)
		if sig == "" || !auth.VerifySignature(cfg.WebhookSecret, body, sig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	evt := parseCallEvent(payload)
	if evt.CallID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing call_id"})
		return
	}

	rec := model.NewRawCallRecord(evt, util.NormalizeDID(evt.DID), time.Now())
	result, err := buf.Submit(c.Request.Context(), rec)
	if err != nil {
		log.Printf("submit call %s: %v", evt.CallID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}
	if result == buffer.Duplicate {
		log.Printf("duplicate call_id ignored: %s", evt.CallID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func handleStats(c *gin.Context, store dedup.Store, buf *buffer.Buffer) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	processed, err := store.Count(ctx)
	if err != nil {
		log.Printf("count processed ids: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"processed_calls": processed,
		"queue_size":      buf.Len(),
	})
}

// parseCallEvent lifts the loose webhook payload into a typed event.
// Provider payloads are inconsistent about numeric types, so every numeric
// field coerces to zero rather than failing the request.
func parseCallEvent(payload map[string]any) model.CallEvent {
	return model.CallEvent{
		CallID:        str(payload, "call_id"),
		CallStartUTC:  str(payload, "callStartUtc"),
		DID:           str(payload, "did"),
		CallerID:      str(payload, "callerId"),
		DurationSec:   int(num(payload, "durationSec")),
		Disposition:   str(payload, "disposition"),
		CampaignName:  str(payload, "campaignName"),
		CampaignID:    str(payload, "campaignId"),
		Target:        str(payload, "target"),
		PublisherID:   str(payload, "publisherId"),
		PublisherName: str(payload, "publisherName"),
		Payout:        num(payload, "payout"),
		Revenue:       num(payload, "revenue"),
	}
}

func str(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func num(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func graceful(server *http.Server, cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down webhook API...")
	cancel()
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
