// Package app opens the infrastructure shared by the API server and the mobile-money worker.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/config"
	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/domain/topup"
	"github.com/tapcard/tapcard-api/internal/pkg/database"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/sms"
	"github.com/tapcard/tapcard-api/internal/pkg/storage"
)

// Components are the long-lived clients every process needs
type Components struct {
	Config   *config.Config
	DB       *sqlx.DB
	Redis    *redis.Client
	Ledger   *ledger.Client
	Momo     *momo.Registry
	SMS      *sms.Service
	Accounts *balance.Resolver
}

// Open connects to PostgreSQL and Redis and builds the external service clients
func Open(cfg *config.Config) (*Components, error) {
	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			database.ClosePostgres(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		database.ClosePostgres(db)
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL: cfg.LedgerBaseURL,
		APIKey:  cfg.LedgerAPIKey,
		Timeout: cfg.LedgerTimeout(),
	})

	smsService := sms.NewService(sms.NewClient(sms.Config{
		BaseURL: cfg.SMSBaseURL,
		APIKey:  cfg.SMSAPIKey,
		Sender:  cfg.SMSSender,
	}))

	return &Components{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Ledger:   ledgerClient,
		Momo:     NewMomoRegistry(cfg),
		SMS:      smsService,
		Accounts: balance.NewResolver(balance.NewAccountRepository(db), ledgerClient, cfg.LedgerID, cfg.Currency),
	}, nil
}

// NewMomoRegistry registers a gateway for every provider with credentials configured
func NewMomoRegistry(cfg *config.Config) *momo.Registry {
	var gateways []momo.Gateway

	if cfg.MTNSubscriptionKey != "" && cfg.MTNAPIUser != "" {
		gateways = append(gateways, momo.NewMTNGateway(momo.MTNConfig{
			BaseURL:           cfg.MTNBaseURL,
			SubscriptionKey:   cfg.MTNSubscriptionKey,
			APIUser:           cfg.MTNAPIUser,
			APIKey:            cfg.MTNAPIKey,
			TargetEnvironment: cfg.MTNTargetEnv,
			CallbackURL:       cfg.MTNCallbackURL,
			Currency:          cfg.Currency,
			Timeout:           cfg.MomoTimeout(),
		}))
	} else {
		log.Warn().Msg("MTN MoMo credentials not configured, MTN numbers cannot be topped up")
	}

	if cfg.AirtelClientID != "" && cfg.AirtelClientSecret != "" {
		gateways = append(gateways, momo.NewAirtelGateway(momo.AirtelConfig{
			BaseURL:      cfg.AirtelBaseURL,
			ClientID:     cfg.AirtelClientID,
			ClientSecret: cfg.AirtelClientSecret,
			Country:      cfg.AirtelCountry,
			Currency:     cfg.Currency,
			Timeout:      cfg.MomoTimeout(),
		}))
	} else {
		log.Warn().Msg("Airtel Money credentials not configured, Airtel numbers cannot be topped up")
	}

	return momo.NewRegistry(gateways...)
}

// NewArchive opens the reconciliation archive: object storage when configured, otherwise a local directory
func NewArchive(cfg *config.Config) (storage.Archive, error) {
	archiveCfg := storage.Config{LocalDir: cfg.ArchiveLocalDir}
	if cfg.ArchiveUsesObjectStorage() {
		archiveCfg.Endpoint = cfg.ArchiveEndpoint
		archiveCfg.Region = cfg.ArchiveRegion
		archiveCfg.AccessKeyID = cfg.ArchiveAccessKeyID
		archiveCfg.AccessKeySecret = cfg.ArchiveAccessKeySecret
		archiveCfg.Bucket = cfg.ArchiveBucket
	}
	return storage.New(archiveCfg)
}

// TopUpService builds the mobile-money top-up service. Events and wake-ups go through Redis when it is available.
func (c *Components) TopUpService(publisher topup.Publisher) *topup.Service {
	svc := topup.NewService(
		topup.NewRepository(c.DB),
		c.Momo,
		c.Ledger,
		c.Accounts,
		topup.Config{
			Currency:       c.Config.Currency,
			FloatBalanceID: c.Config.MomoFloatBalanceID,
			PendingTTL:     c.Config.MomoPendingTTL,
		},
	)
	svc.SetNotifier(c.SMS)
	if publisher != nil {
		svc.SetPublisher(publisher)
	}
	if c.Redis != nil {
		svc.SetWaker(topup.NewRedisWaker(c.Redis))
	}
	return svc
}

// Close releases every component
func (c *Components) Close() {
	c.SMS.Close()
	database.CloseRedis(c.Redis)
	database.ClosePostgres(c.DB)
}
