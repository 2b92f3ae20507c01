package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"saferental-service/internal/audit"
	"saferental-service/internal/client"
	"saferental-service/internal/config"
	"saferental-service/internal/events"
	"saferental-service/internal/files"
	"saferental-service/internal/hashing"
	"saferental-service/internal/metrics"
	"saferental-service/internal/model"
	"saferental-service/internal/notify"
	"saferental-service/internal/pdf"
	redisrepo "saferental-service/internal/repository/redis"
	"saferental-service/internal/repository/scylla"
	"saferental-service/internal/search"
	"saferental-service/internal/secrets"
	"saferental-service/internal/service"
	"saferental-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Infrastructure
	hasher    *hashing.Hasher
	store     *files.Store
	gateway   *files.Gateway
	mailer    *notify.Mailer
	recorder  *audit.Recorder
	publisher *events.Publisher
	indexer   *search.Indexer
	metrics   *metrics.Metrics

	// Services
	agreementService *service.AgreementService
	otpService       *service.OTPService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and wires every dependency. Scylla and the
// signing secret are hard requirements; the broker, caches and analytics
// stores degrade to warnings when absent.
func NewFactory() (*Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("redis_enabled", f.redisClient != nil),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
		util.Bool("elasticsearch_enabled", f.esClient != nil),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// ScyllaDB is the system of record and always required.
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	util.Info("ScyllaDB client initialized and healthy")

	// Redis
	if f.config.Redis.URL != "" {
		if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = rc
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	// Kafka
	if len(f.config.Kafka.Brokers) > 0 {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.URL != "" {
		if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = ch
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	// Elasticsearch
	if f.config.Elastic.URL != "" {
		if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = es
			if err := f.esClient.HealthCheck(); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.hasher = hashing.NewHasher(hashing.DefaultParams())
	f.metrics = metrics.New()

	store, err := files.NewStore(f.config)
	if err != nil {
		return fmt.Errorf("upload store: %w", err)
	}
	f.store = store

	secret, err := secrets.LoadSigningSecret(ctx, f.config)
	if err != nil {
		return fmt.Errorf("signing secret: %w", err)
	}

	mailer, err := notify.NewMailer(f.config)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	f.mailer = mailer

	f.publisher = events.NewPublisher(f.kafkaProducer)
	f.recorder = audit.NewRecorder(f.clickhouseClient)
	f.indexer = search.NewIndexer(f.esClient, f.config.Elastic.Index)

	agreementRepo := scylla.NewAgreementRepository(f.scyllaClient, util.Get())
	f.gateway = files.NewGateway(f.store, agreementRepo, secret, f.config.Files.SignedURLTTL)

	return nil
}

func (f *Factory) initializeServices() {
	agreementRepo := scylla.NewAgreementRepository(f.scyllaClient, util.Get())
	otpRepo := scylla.NewOtpRepository(f.scyllaClient, util.Get())
	allocator := scylla.NewSequenceRepository(f.scyllaClient, util.Get())

	var throttle service.OtpThrottle
	if f.redisClient != nil {
		throttle = redisrepo.NewOTPCache(f.redisClient)
	}

	transports := notify.Transports{
		model.ContactTypeEmail: f.mailer,
		model.ContactTypePhone: notify.NewSMSStub(),
	}

	f.agreementService = service.NewAgreementService(
		agreementRepo, allocator, f.indexer, f.publisher, f.recorder, f.metrics)
	f.otpService = service.NewOTPService(
		otpRepo, agreementRepo, f.hasher, transports, throttle,
		pdf.NewGenerator(), f.mailer, f.recorder, f.publisher, f.metrics,
		f.config.OTP)
}

// HealthCheck reports the state of every configured dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	return healthErrors
}

// IsHealthy treats the optional broker as advisory only.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Close shuts everything down in reverse dependency order.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.mailer != nil {
			if err := f.mailer.Close(); err != nil {
				util.Error("Failed to close SMTP client", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AgreementService() *service.AgreementService {
	return f.agreementService
}

func (f *Factory) OTPService() *service.OTPService {
	return f.otpService
}

func (f *Factory) Gateway() *files.Gateway {
	return f.gateway
}

func (f *Factory) Store() *files.Store {
	return f.store
}

func (f *Factory) Recorder() *audit.Recorder {
	return f.recorder
}

func (f *Factory) Metrics() *metrics.Metrics {
	return f.metrics
}
