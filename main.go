package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/joho/godotenv"

	"energybot/internal/api"
	"energybot/internal/config"
	"energybot/internal/db"
	"energybot/internal/features"
	"energybot/internal/generation"
	"energybot/internal/handlers"
	"energybot/internal/ingress"
	"energybot/internal/ledger"
	"energybot/internal/logging"
	"energybot/internal/payments"
	"energybot/internal/session"
	"energybot/internal/telegram_api"
	"energybot/internal/topup"
	"energybot/internal/users"
)

func main() {
	if err := run(); err != nil {
		slog.Error("критическая ошибка", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Блок инициализации ---
	if err := godotenv.Load(); err != nil {
		slog.Warn("не удалось загрузить файл .env, переменные окружения должны быть установлены иным способом")
	}
	log := logging.New(os.Stdout, logging.ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(log)

	cfg, err := config.LoadConfig(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer store.Close()

	bot, err := telegram_api.NewBotClient(cfg.TelegramToken, cfg.IsDev(), log)
	if err != nil {
		return err
	}
	if cfg.BotUsername == "" {
		cfg.BotUsername = bot.Username()
	}

	// --- Леджер и сверка платежей ---
	balance := ledger.NewBalance(log)
	paymentRecords := ledger.NewPayments(store, log)
	engine := topup.NewEngine(store, paymentRecords, balance, log, topup.WithReferralPercent(cfg.ReferralBonusPercent))
	yookassa := payments.NewYooKassa(cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.YooKassaReturnURL, log)
	notifier := telegram_api.NewPaymentNotifier(bot, store, log)
	checker := ingress.NewChecker(paymentRecords, engine, yookassa, notifier, cfg.GatewayTimeout, log)

	cidrs := cfg.WebhookAllowedCIDRs
	if len(cidrs) == 0 {
		cidrs = ingress.DefaultAllowedCIDRs
	}
	proxies := cfg.WebhookTrustedProxies
	if len(proxies) == 0 {
		proxies = ingress.DefaultTrustedProxies
	}
	auth, err := ingress.NewSourceAuth(cidrs, proxies, cfg.YooKassaShopID, cfg.YooKassaSecretKey)
	if err != nil {
		return err
	}
	poller := ingress.NewPoller(paymentRecords, checker, cfg.PollInterval, log)
	if err := poller.Start(ctx); err != nil {
		return err
	}

	// --- Сервисы бота ---
	var userOpts []users.Option
	if cfg.SubscriptionChannelID != 0 {
		userOpts = append(userOpts, users.WithSubscriptionBonus(
			telegram_api.NewChannelMembership(bot, cfg.SubscriptionChannelID), cfg.SubscriptionBonus))
	}
	if cfg.GenerationAPIURL == "" {
		log.Warn("GENERATION_API_URL не установлен, платные функции будут недоступны")
	}
	provider := generation.NewHTTPProvider(cfg.GenerationAPIURL, cfg.GenerationAPIKey, cfg.GenerationModel, log)

	botHandler := handlers.NewBotHandler(handlers.HandlerDependencies{
		Config:         cfg,
		BotClient:      bot,
		SessionManager: session.NewSessionManager(),
		Users:          users.NewService(store, balance, log, userOpts...),
		Features:       features.NewService(store, provider, balance, log),
		Gateway:        yookassa,
		Payments:       paymentRecords,
		Checker:        checker,
		Engine:         engine,
		Balance:        balance,
		Store:          store,
		Log:            log,
	})

	// --- HTTP: вебхук ЮKassa, health, админ API ---
	router := api.NewRouter(api.Dependencies{
		Stats:          store,
		Export:         store,
		DB:             store,
		Webhook:        ingress.NewWebhookHandler(checker, auth, log),
		AdminToken:     cfg.AdminAPIToken,
		BotToken:       cfg.TelegramToken,
		OwnerChatID:    cfg.OwnerChatID,
		InitDataMaxAge: cfg.InitDataMaxAge,
		CORSOrigins:    cfg.CORSOrigins,
		Log:            log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("запуск HTTP-сервера", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP-сервер остановлен", "error", err)
			stop()
		}
	}()

	// Запуск самого бота
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	log.Info("бот и API-сервер запущены и готовы к работе")

	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case update, ok := <-updates:
			if !ok {
				break loop
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				botHandler.HandleUpdate(ctx, update)
			}()
		}
	}

	// --- Остановка ---
	log.Info("остановка")
	bot.StopReceivingUpdates()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("остановка HTTP-сервера", "error", err)
	}
	if err := poller.Stop(); err != nil {
		log.Error("остановка поллера", "error", err)
	}
	wg.Wait()
	notifier.Wait()
	return nil
}
