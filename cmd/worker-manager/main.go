// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-workers/internal/common/camunda"
	"loan-workers/internal/common/config"
	"loan-workers/internal/common/database"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/observability"
	"loan-workers/internal/workflow/audit"
	"loan-workers/internal/workflow/join"
	"loan-workers/internal/workflow/orchestrator"
	"loan-workers/internal/workflow/store"

	cc "loan-workers/internal/workers/loan/check-credit"
	cdr "loan-workers/internal/workers/loan/check-debt-ratio"
	pa "loan-workers/internal/workers/loan/prepare-agreement"
	sn "loan-workers/internal/workers/loan/send-notification"
	vc "loan-workers/internal/workers/loan/verify-completeness"
)

const auditIndex = "loan-status-transitions"

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("loan-workers")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Workflow core: store, join barrier, audit trail, orchestrator ---
	recordStore := store.NewPostgresStore(pg.DB)
	if err := recordStore.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("loan application schema setup failed", zap.Error(err))
	}

	subCheckTimeout := config.GetDuration(cfg.Loan.SubCheckTimeout)
	barrier := join.NewRedisBarrier(redis.GetClient(), subCheckTimeout)

	auditSink := audit.NewMultiSink(
		audit.NewLogSink(log),
		audit.NewElasticsearchSink(esClient.Client, auditIndex),
	)

	dispatcher := camunda.NewZeebeDispatcher(camundaClient)

	orc, err := orchestrator.New(orchestrator.Config{
		MaxAttempts:     cfg.Loan.MaxAttempts,
		SubCheckTimeout: subCheckTimeout,
	}, recordStore, barrier, dispatcher, auditSink, log)
	if err != nil {
		zapLog.Fatal("orchestrator setup failed", zap.Error(err))
	}

	zeebeClient := camundaClient.GetClient()

	// --- Orchestrator task handlers ---
	jobs := camunda.NewOrchestratorJobs(orc, config.GetDuration(cfg.Camunda.RequestTimeout), log)
	for taskType, handle := range map[string]func(worker.JobClient, entities.Job){
		camunda.TaskIntake:             jobs.HandleIntake,
		camunda.TaskResubmit:           jobs.HandleResubmit,
		camunda.TaskRecordCompleteness: jobs.HandleCompletenessOutcome,
		camunda.TaskRecordSubCheck:     jobs.HandleSubCheckResult,
		camunda.TaskEligibilityTimeout: jobs.HandleEligibilityTimeout,
		camunda.TaskRecordAgreement:    jobs.HandleAgreementTerms,
		camunda.TaskApplicantResponse:  jobs.HandleApplicantResponse,
	} {
		startWorker(zeebeClient, obs, taskType, config.GetWorkerConfig(cfg, taskType), handle, zapLog)
	}

	// --- Stage workers ---
	if config.IsWorkerEnabled(cfg, vc.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, vc.TaskType)
		handler := vc.NewHandler(
			&vc.Config{
				RequiredFields:    cfg.Loan.RequiredFields,
				RequiredDocuments: []string{"identity_verification"},
				Timeout:           config.GetDuration(wcfg.Timeout),
			},
			log,
		)
		startWorker(zeebeClient, obs, vc.TaskType, wcfg, handler.Handle, zapLog)
	}

	if config.IsWorkerEnabled(cfg, cc.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, cc.TaskType)
		handler := cc.NewHandler(
			&cc.Config{
				MinCreditScore: cfg.Loan.MinCreditScore,
				Timeout:        config.GetDuration(wcfg.Timeout),
			},
			log,
		)
		startWorker(zeebeClient, obs, cc.TaskType, wcfg, handler.Handle, zapLog)
	}

	if config.IsWorkerEnabled(cfg, cdr.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, cdr.TaskType)
		handler := cdr.NewHandler(
			&cdr.Config{
				MaxDebtRatio: cfg.Loan.MaxDebtRatio,
				Timeout:      config.GetDuration(wcfg.Timeout),
			},
			log,
		)
		startWorker(zeebeClient, obs, cdr.TaskType, wcfg, handler.Handle, zapLog)
	}

	if config.IsWorkerEnabled(cfg, pa.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, pa.TaskType)
		handler := pa.NewHandler(
			&pa.Config{
				BaseAnnualRate:    cfg.Reimbursement.BaseAnnualRate,
				RiskPremium:       cfg.Reimbursement.RiskPremium,
				MaxMonthlyPayment: cfg.Reimbursement.MaxMonthlyPayment,
				MaxDurationYears:  cfg.Reimbursement.MaxDurationYears,
				MaxRepaymentRatio: cfg.Reimbursement.MaxRepaymentRatio,
				MinPaymentBuffer:  cfg.Reimbursement.MinPaymentBuffer,

				InsuranceEnabled:         cfg.Reimbursement.Insurance.Enabled,
				InsuranceAmountThreshold: cfg.Reimbursement.Insurance.AmountThreshold,
				InsuranceMonthlyRate:     cfg.Reimbursement.Insurance.MonthlyRate,

				Timeout: config.GetDuration(wcfg.Timeout),
			},
			log,
		)
		startWorker(zeebeClient, obs, pa.TaskType, wcfg, handler.Handle, zapLog)
	}

	if config.IsWorkerEnabled(cfg, sn.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, sn.TaskType)
		handler, err := sn.NewHandler(
			&sn.Config{
				EmailEnabled: cfg.Notifications.Email.Enabled,
				SMSEnabled:   cfg.Notifications.SMS.Enabled,
				FromEmail:    cfg.Notifications.Email.FromEmail,
				AWSRegion:    cfg.Notifications.AWS.Region,
				Timeout:      config.GetDuration(wcfg.Timeout),
			},
			recordStore, log,
		)
		if err != nil {
			zapLog.Fatal("failed to create send-notification handler", zap.Error(err))
		}
		startWorker(zeebeClient, obs, sn.TaskType, wcfg, handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, obs *observability.Observability, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	metered := func(jobClient worker.JobClient, job entities.Job) {
		start := time.Now()
		handlerFunc(jobClient, job)
		obs.RecordJobHandled(context.Background(), taskType, time.Since(start))
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(metered).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
