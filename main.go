package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"syncer/src/clients/linkedin"
	"syncer/src/clients/twenty"
	"syncer/src/config"
	"syncer/src/excel"
	"syncer/src/repositories"
	"syncer/src/scheduler"
	"syncer/src/services"
	"syncer/src/utils"
	aws_handler "syncer/src/utils/aws"
)

func main() {
	cfg, err := config.LoadConfig("./settings")
	if err != nil {
		log.Println(err, "Error while loading config")
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Service.LogLevel, cfg.Service.LogToFile, cfg.Service.LogPath)
	ctx := utils.WithLogger(context.Background(), logger)

	command := "sync"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	if err := run(ctx, cfg, command, args); err != nil {
		logger.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	logger := utils.LoggerFromContext(ctx)

	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	switch command {
	case "linkedin-auth":
		_, err := linkedin.NewAuthenticator(cfg).Authenticate(ctx)
		return err
	}

	crmClient, err := twenty.NewClient(cfg)
	if err != nil {
		return err
	}
	excelHandler := excel.NewExcelHandler(cfg.Excel.FilePath)
	ledgerRepo := repositories.NewLedgerRepository(cfg.Sync.LedgerPath)
	resolver := services.NewConflictResolver(cfg.Sync.Strategy)
	syncService := services.NewSyncService(crmClient, excelHandler, ledgerRepo, resolver, cfg.Objects)

	switch command {
	case "sync":
		_, err := syncService.SyncAll(ctx)
		return err

	case "pull":
		_, err := syncService.Pull(ctx)
		return err

	case "push":
		_, err := syncService.Push(ctx)
		return err

	case "schedule":
		return runScheduled(ctx, cfg, syncService)

	case "health":
		if !crmClient.Health(ctx) {
			return fmt.Errorf("CRM is not reachable at %s", cfg.ExternalClients.Twenty.BaseURL)
		}
		logger.Info("CRM is healthy")
		return nil

	case "linkedin-sync":
		linkedInClient, err := linkedin.NewClient(cfg)
		if err != nil {
			return err
		}
		service := services.NewLinkedInService(crmClient, linkedInClient, excelHandler, cfg.Objects)
		_, err = service.Sync(ctx, linkedInScope(args), hasFlag(args, "--dry-run"))
		return err

	case "linkedin-preview":
		linkedInClient, err := linkedin.NewClient(cfg)
		if err != nil {
			return err
		}
		service := services.NewLinkedInService(crmClient, linkedInClient, excelHandler, cfg.Objects)
		counts, err := service.Preview(ctx)
		if err != nil {
			return err
		}
		for domain, count := range counts {
			logger.Infof("%s: %d record(s)", domain, count)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (expected sync, pull, push, schedule, health, linkedin-auth, linkedin-sync or linkedin-preview)", command)
	}
}

// runScheduled runs a full sync on startup and then every configured
// interval, until SIGINT or SIGTERM.
func runScheduled(ctx context.Context, cfg *config.Config, syncService services.SyncServiceI) error {
	logger := utils.LoggerFromContext(ctx)

	pass := func() {
		if _, err := syncService.SyncAll(ctx); err != nil {
			logger.Errorf("Scheduled sync failed: %v", err)
		}
	}

	pass()

	cronSpec := fmt.Sprintf("@every %dm", cfg.Sync.IntervalMinutes)
	task, err := scheduler.NewScheduledTask(cronSpec, pass)
	if err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	logger.Infof("Scheduler started, syncing every %d minute(s)", cfg.Sync.IntervalMinutes)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("Shutting down, waiting for the current pass to finish...")
	task.Cancel()
	return nil
}

// resolveAPIKey swaps the Secrets Manager reference for the actual CRM API
// key when one is configured.
func resolveAPIKey(cfg *config.Config) error {
	secretID := cfg.ExternalClients.Twenty.APIKeySecretID
	if secretID == "" {
		return nil
	}
	handler, err := aws_handler.NewAWSHandler(cfg.Service.AWSRegion)
	if err != nil {
		return fmt.Errorf("initialising AWS session: %w", err)
	}
	key, err := handler.SecretManager.GetSecretValue(secretID)
	if err != nil {
		return fmt.Errorf("reading secret %s: %w", secretID, err)
	}
	cfg.ExternalClients.Twenty.APIKey = key
	return nil
}

func linkedInScope(args []string) services.SyncScope {
	for _, arg := range args {
		if value, ok := strings.CutPrefix(arg, "--scope="); ok {
			switch services.SyncScope(value) {
			case services.ScopePeople, services.ScopeCompanies, services.ScopeBoth:
				return services.SyncScope(value)
			}
		}
	}
	return services.ScopeBoth
}

func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}
