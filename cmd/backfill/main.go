package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courseforge/courseforge/pkg/billing"
	"github.com/courseforge/courseforge/pkg/billing/billingmongo"
	"github.com/courseforge/courseforge/pkg/config"
	"github.com/courseforge/courseforge/pkg/logger"
	"github.com/courseforge/courseforge/pkg/mongo"
)

type backfillConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	PlansFile   string `env:"BILLING_PLANS_FILE"`
}

func main() {
	days := flag.Int("days", 30, "how far back to scan checkout events")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	reclassify := flag.Bool("reclassify", false, "also repair mislabeled orders")
	flag.Parse()

	var (
		appCfg    backfillConfig
		mongoCfg  mongo.Config
		stripeCfg billing.StripeConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&mongoCfg)
	config.MustLoad(&stripeCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, "billing-backfill"))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	reconciler := billing.NewBackfillReconciler(processor, store, plans,
		billing.WithDryRun(*dryRun),
		billing.WithBackfillLogger(log),
	)

	since := time.Now().AddDate(0, 0, -*days)
	report, err := reconciler.BackfillOrders(ctx, since)
	if err != nil {
		fatal(log, "backfill aborted", err)
	}
	log.Info("backfill finished",
		slog.Bool("dry_run", *dryRun),
		slog.Int("accounts_scanned", report.AccountsScanned),
		slog.Int("events_seen", report.EventsSeen),
		slog.Int("orders_created", report.OrdersCreated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	if *reclassify {
		reclassifyReport, err := reconciler.ReclassifyMisassignedOrders(ctx)
		if err != nil {
			fatal(log, "reclassification aborted", err)
		}
		log.Info("reclassification finished",
			slog.Bool("dry_run", *dryRun),
			slog.Int("scanned", reclassifyReport.Scanned),
			slog.Int("explicit", reclassifyReport.Explicit),
			slog.Int("inferred", reclassifyReport.Inferred),
			slog.Int("unchanged", reclassifyReport.Unchanged),
			slog.Int("failed", reclassifyReport.Failed),
		)
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
