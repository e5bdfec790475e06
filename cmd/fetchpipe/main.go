// Command fetchpipe runs the bounded fetch pipeline over a list of URLs
// given as arguments or via a URL list file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/RNFS/fetchpipe/pkg/client"
	"github.com/RNFS/fetchpipe/pkg/logging"
	"github.com/RNFS/fetchpipe/pkg/pipeline"
	"github.com/RNFS/fetchpipe/pkg/report"
	"github.com/RNFS/fetchpipe/pkg/throttle"
	"github.com/RNFS/fetchpipe/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	urlsFile := flag.String("urls-file", "", "file with one URL per line")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	urls := flag.Args()
	if *urlsFile != "" {
		fromFile, err := readURLs(*urlsFile)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read URL list")
			os.Exit(1)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fetchpipe [-config file] [-urls-file file] [url ...]")
		os.Exit(2)
	}

	orchestrator, err := buildPipeline(cfg, urls)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build pipeline")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx)
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("timed_out", summary.TimedOut).
		Int("failed", summary.Failed).
		Msg("Run complete")

	if err != nil {
		logger.Error().Err(err).Msg("Pipeline failed")
		os.Exit(1)
	}
}

func buildPipeline(cfg *Config, urls []string) (*pipeline.Orchestrator, error) {
	transferer, err := transfer.New(transfer.Config{
		Kind:      transfer.Kind(cfg.Transfer.Kind),
		UserAgent: cfg.Transfer.UserAgent,
		Sim: transfer.SimConfig{
			Latency:     cfg.Transfer.SimLatency,
			FailureRate: cfg.Transfer.SimFailureRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	clientCfg := client.Config{
		Transfer:       transferer,
		MaxConcurrency: cfg.Client.MaxConcurrency,
		Timeout:        cfg.Client.Timeout,
		Retry: client.RetryConfig{
			MaxAttempts: cfg.Client.MaxAttempts,
			BaseDelay:   cfg.Client.BaseDelay,
		},
	}
	if cfg.Client.ThrottleInterval > 0 {
		limiter, err := throttle.New(cfg.Client.ThrottleInterval)
		if err != nil {
			return nil, fmt.Errorf("throttle: %w", err)
		}
		clientCfg.Throttle = limiter
	}

	fetchClient, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	reporters := []report.Reporter{report.NewLogReporter(), report.NewMetricsReporter()}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		sink, err := report.NewRedisSink(redisClient, cfg.Redis.Prefix)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		reporters = append(reporters, sink)
	}

	return pipeline.New(pipeline.Config{
		Source:        pipeline.NewSliceSource(urls...),
		Client:        fetchClient,
		Reporter:      report.NewMulti(reporters...),
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		Workers:       cfg.Pipeline.Workers,
	})
}

// readURLs loads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
