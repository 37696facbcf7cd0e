package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/kaspi-offer-tracker/config"
	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/aluiziolira/kaspi-offer-tracker/notify"
	"github.com/aluiziolira/kaspi-offer-tracker/pipeline"
	"github.com/aluiziolira/kaspi-offer-tracker/scheduler"
	"github.com/aluiziolira/kaspi-offer-tracker/scraper"
	"github.com/aluiziolira/kaspi-offer-tracker/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	configFile := flag.String("config", "", "YAML configuration file")
	once := flag.Bool("once", false, "Run a single time and exit")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	productURL := flag.String("product-url", "", "Product page URL (overrides the seed file)")
	seedFile := flag.String("seed", "", "Seed JSON file with product_url")
	exportDir := flag.String("export-dir", "", "Directory for export files")
	exportFormat := flag.String("format", "", "Export format: json or dual")
	maxRetries := flag.Int("max-retries", 0, "Maximum retry attempts per request")
	parallelism := flag.Int("parallel", 0, "Concurrent offer page requests after page 0")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	interval := flag.Duration("interval", 0, "Time between scheduled runs")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			cfg.Verbose = *verbose
		case "product-url":
			cfg.ProductURL = *productURL
		case "seed":
			cfg.SeedFile = *seedFile
		case "export-dir":
			cfg.ExportDir = *exportDir
		case "format":
			cfg.ExportFormat = strings.ToLower(*exportFormat)
		case "max-retries":
			cfg.MaxRetries = *maxRetries
		case "parallel":
			cfg.OfferParallelism = *parallelism
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "interval":
			cfg.Interval = *interval
		}
	})

	logger, closeLog, err := newLogger(cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight run to finish")
	}()

	if err := run(ctx, cfg, logger, *once); err != nil {
		slog.Error("tracker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	metrics := scraper.NewMetrics()
	s, err := scraper.NewScraper(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		return err
	}

	exporter, err := pipeline.NewExporter(cfg.ExportFormat, cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("creating exporter: %w", err)
	}

	p := pipeline.NewPipeline(s, store.NewReconciler(db, logger), exporter, logger, metrics)

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		producer, err := notify.NewKafkaProducer(brokers)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		publisher := notify.NewKafkaPublisher(producer, cfg.KafkaTopic, logger)
		defer publisher.Close()
		p.WithPublisher(publisher)
		slog.Info("kafka publishing enabled", slog.String("topic", cfg.KafkaTopic))
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownMetricsServer(metricsServer)

	var last *models.RunResult
	job := func(ctx context.Context) error {
		productURL, err := cfg.ResolveProductURL()
		if err != nil {
			return err
		}
		last, err = p.RunOnce(ctx, productURL)
		return err
	}

	sched := scheduler.New(cfg.Interval, cfg.RunOnStart, job, logger)
	if cfg.RedisAddr != "" {
		client := scheduler.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		sched.WithLocker(scheduler.NewRedisLocker(client, cfg.RedisLockKey, cfg.RedisLockTTL))
		slog.Info("redis run lock enabled", slog.String("key", cfg.RedisLockKey))
	}

	if once {
		ran, err := sched.RunOnce(ctx)
		if !ran && err == nil {
			slog.Info("run skipped, lock held elsewhere")
			return nil
		}
		if last != nil {
			printSummary(last, cfg.ExportDir)
		}
		return err
	}

	slog.Info("starting scheduler",
		slog.Duration("interval", cfg.Interval),
		slog.Bool("run_on_start", cfg.RunOnStart),
	)
	return sched.Run(ctx)
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.RunResult, exportDir string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Run complete")
	fmt.Printf("  Run id:        %s\n", result.RunID)
	fmt.Printf("  State:         %s\n", result.State)
	if p := result.Product; p != nil {
		fmt.Printf("  Product:       %d %s\n", p.ID, p.Name)
		if p.MinPrice != nil && p.MaxPrice != nil {
			fmt.Printf("  Price range:   %d - %d\n", *p.MinPrice, *p.MaxPrice)
		}
	}
	fmt.Printf("  Offers:        %d\n", len(result.Offers))
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped:       %v\n", result.Skipped)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Export dir:    %s\n", exportDir)
	fmt.Println(separator)
}

// newLogger renames the message key to "status" so records read
// {"status":"success","action":...,"url":...}.
func newLogger(verbose bool, logFile string) (*slog.Logger, func(), error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.MessageKey {
				a.Key = "status"
			}
			return a
		},
	}

	closeFn := func() {}
	var out io.Writer = os.Stdout
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}

	var handler slog.Handler
	if logFile == "" && isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
