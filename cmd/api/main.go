package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	billingmodule "github.com/courseforge/courseforge/modules/billing"
	"github.com/courseforge/courseforge/pkg/billing"
	"github.com/courseforge/courseforge/pkg/billing/billingmongo"
	"github.com/courseforge/courseforge/pkg/config"
	"github.com/courseforge/courseforge/pkg/httpserver"
	"github.com/courseforge/courseforge/pkg/logger"
	"github.com/courseforge/courseforge/pkg/mongo"
	"github.com/courseforge/courseforge/pkg/redis"
	"github.com/courseforge/courseforge/pkg/requestid"
)

type appConfig struct {
	Environment        string `env:"APP_ENV" envDefault:"development"`
	PlansFile          string `env:"BILLING_PLANS_FILE"`
	LedgerBackend      string `env:"EVENT_LEDGER_BACKEND" envDefault:"mongo"`
	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS_URL,required"`
	CheckoutCancelURL  string `env:"CHECKOUT_CANCEL_URL,required"`
}

func main() {
	var (
		appCfg    appConfig
		httpCfg   httpserver.Config
		mongoCfg  mongo.Config
		redisCfg  redis.Config
		stripeCfg billing.StripeConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&mongoCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&stripeCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Environment, "billing-api"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx := context.Background()

	db, err := mongo.ConnectDatabase(ctx, mongoCfg)
	if err != nil {
		fatal(log, "mongo connection failed", err)
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	processor, err := billing.NewStripeProcessor(stripeCfg)
	if err != nil {
		fatal(log, "stripe processor init failed", err)
	}

	plans, err := loadPlans(ctx, appCfg.PlansFile)
	if err != nil {
		fatal(log, "plan catalog load failed", err)
	}

	store := billingmongo.NewStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		fatal(log, "index creation failed", err)
	}

	probes := []func(context.Context) error{mongo.Healthcheck(db.Client())}

	var ledger billing.EventLedger
	switch appCfg.LedgerBackend {
	case "redis":
		redisClient, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			fatal(log, "redis connection failed", err)
		}
		defer func() { _ = redisClient.Close() }()
		ledger = billing.NewRedisLedger(redisClient, 30*24*time.Hour)
		probes = append(probes, redis.Healthcheck(redisClient))
	case "mongo":
		ledger = billingmongo.NewLedger(db)
	default:
		fatal(log, "unknown event ledger backend", fmt.Errorf("backend %q", appCfg.LedgerBackend))
	}

	module := billingmodule.NewModule(
		billing.NewWebhookReconciler(stripeCfg.WebhookSecret, ledger, store, processor, plans,
			billing.WithReconcilerLogger(log)),
		billing.NewPlanChangeEngine(processor, store, plans,
			billing.WithCheckoutURLs(appCfg.CheckoutSuccessURL, appCfg.CheckoutCancelURL),
			billing.WithPlanChangeLogger(log)),
		billing.NewClaimResolver(processor, store, plans, log),
		billing.NewEntitlementResolver(store, plans),
		billingmodule.WithLogger(log),
		billingmodule.WithHealthProbes(probes...),
	)

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("billing api listening", slog.String("addr", httpCfg.Addr))
		}),
	)
	if err := srv.Run(ctx, module.Router()); err != nil {
		fatal(log, "server exited", err)
	}
}

func loadPlans(ctx context.Context, path string) (*billing.Catalog, error) {
	if path == "" {
		return billing.LoadCatalog(ctx, billing.NewInMemSource(billing.DefaultPlans()...))
	}
	return billing.LoadCatalog(ctx, billing.NewYAMLSource(path))
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
