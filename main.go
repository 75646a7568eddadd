package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loanflow/cache"
	"loanflow/config"
	"loanflow/controllers"
	"loanflow/database"
	"loanflow/middleware"
	"loanflow/partners"
	"loanflow/services"
	"loanflow/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
)

// application holds the wired services and everything that must be closed
// on shutdown
type application struct {
	cfg          *config.Config
	repo         database.Repository
	users        *services.UserService
	verification *services.VerificationService
	dashboard    *services.DashboardService
	orch         *services.Orchestrator
	closers      []func() error
}

func (app *application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			utils.LogError("shutdown: %v", err)
		}
	}
}

func newRepository(cfg *config.Config, app *application) (database.Repository, error) {
	if cfg.DB.Driver == "memory" {
		utils.LogInfo("using in-memory store")
		return database.NewMemory(), nil
	}

	gdb, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	db := database.NewDatabase(gdb)
	app.closers = append(app.closers, db.Close)
	return db, nil
}

func newLocker(ctx context.Context, cfg *config.Config, app *application) (utils.Locker, error) {
	if cfg.Redis.Address == "" {
		return utils.NewKeyedMutex(), nil
	}

	rdb, err := cache.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, rdb.Close)
	utils.LogInfo("using redis locks at %s", cfg.Redis.Address)
	return cache.NewRedisLocker(rdb, cfg.Redis.LockTTL), nil
}

func newDelivery(ctx context.Context, cfg *config.Config, email *services.EmailService, app *application) (services.OTPDelivery, error) {
	var phone services.PhoneSender
	if cfg.WhatsApp.Enabled {
		wa, err := services.NewWhatsAppService(ctx, cfg.WhatsApp.StorePath, cfg.Collaborators.Timeout)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error {
			wa.Disconnect()
			return nil
		})
		phone = wa
	}
	return services.NewChannelDelivery(email, phone, cfg.Bureau.Region, cfg.OTP.TTL), nil
}

func newDocumentStore(ctx context.Context, cfg *config.Config, app *application) (services.DocumentStore, error) {
	if cfg.Storage.Backend == "gcs" {
		store, err := services.NewGCSDocumentStore(ctx, cfg.Storage.GCSBucket, cfg.Collaborators.Timeout)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		return store, nil
	}
	return services.NewLocalDocumentStore(cfg.Storage.LocalDir)
}

func newPublisher(ctx context.Context, cfg *config.Config, app *application) (services.EventPublisher, error) {
	var pub services.EventPublisher
	switch cfg.Events.Backend {
	case "kafka":
		pub = services.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.Collaborators.Timeout)
	case "pubsub":
		p, err := services.NewPubSubPublisher(ctx, cfg.Events.PubSubProject, cfg.Events.PubSubTopic, cfg.Collaborators.Timeout)
		if err != nil {
			return nil, err
		}
		pub = p
	default:
		pub = services.LogPublisher{}
	}
	app.closers = append(app.closers, pub.Close)
	return pub, nil
}

func newNarrator(cfg *config.Config) services.TextGenerator {
	if cfg.Gemini.APIKey == "" {
		return services.TemplateNarrator{}
	}
	return services.NewGeminiNarrator(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Collaborators.Timeout)
}

// buildApplication wires every service from the configuration. On error the
// resources opened so far are released.
func buildApplication(ctx context.Context, cfg *config.Config) (app *application, err error) {
	app = &application{cfg: cfg}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	if app.repo, err = newRepository(cfg, app); err != nil {
		return nil, err
	}
	locker, err := newLocker(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	email := services.NewEmailService(cfg)
	delivery, err := newDelivery(ctx, cfg, email, app)
	if err != nil {
		return nil, err
	}
	store, err := newDocumentStore(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	events, err := newPublisher(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	bureau := services.NewBureauService(cfg.Bureau.BaseURL, cfg.Collaborators.Timeout)
	app.users = services.NewUserService(app.repo, bureau, locker, cfg)
	app.verification = services.NewVerificationService(app.repo, delivery, locker, cfg)
	loans := services.NewLoanService(app.repo, locker)
	app.dashboard = services.NewDashboardService(app.repo, app.users)

	app.orch = services.NewOrchestrator(services.Deps{
		Users:        app.users,
		Verification: app.verification,
		Loans:        loans,
		Documents:    services.NewDocumentService(app.repo, loans, store),
		Chat:         services.NewChatService(app.repo, newNarrator(cfg), cfg.Lender.Name),
		Renderer:     services.NewSanctionLetterRenderer(cfg.Lender.Name),
		Notifier:     email,
		Events:       events,
	})
	return app, nil
}

func newRouter(app *application) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)

	authController := controllers.NewAuthController(app.users)
	loanController := controllers.NewLoanController(app.orch)
	verificationController := controllers.NewVerificationController(app.orch)
	profileController := controllers.NewProfileController(app.orch, app.dashboard)
	documentController := controllers.NewDocumentController(app.orch)
	chatController := controllers.NewChatController(app.orch)

	router.HandleFunc("/api/auth/register", authController.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", authController.SignIn).Methods(http.MethodPost)
	router.HandleFunc("/metrics", controllers.Metrics).Methods(http.MethodGet)

	gin.SetMode(gin.ReleaseMode)
	router.PathPrefix("/partners/").Handler(partners.NewRouter(app.repo, partners.Options{
		RateLimit:  app.cfg.RateLimit.Requests,
		RateWindow: app.cfg.RateLimit.Window,
	}))

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(app.cfg.JWT.SecretKey)))

	protected.HandleFunc("/auth/me", authController.Me).Methods(http.MethodGet)

	protected.HandleFunc("/otp/send", verificationController.Send).Methods(http.MethodPost)
	protected.HandleFunc("/otp/resend", verificationController.Send).Methods(http.MethodPost)
	protected.HandleFunc("/otp/verify", verificationController.Verify).Methods(http.MethodPost)
	protected.HandleFunc("/otp/status", verificationController.Status).Methods(http.MethodGet)

	protected.HandleFunc("/profile/financial", profileController.UpdateFinancial).Methods(http.MethodPost)
	protected.HandleFunc("/profile/affordability", loanController.Affordability).Methods(http.MethodGet)
	protected.HandleFunc("/journey", profileController.Journey).Methods(http.MethodGet)
	protected.HandleFunc("/dashboard/stats", profileController.Dashboard).Methods(http.MethodGet)
	protected.HandleFunc("/dashboard/export", profileController.ExportLoans).Methods(http.MethodGet)

	protected.HandleFunc("/loans/apply", loanController.Apply).Methods(http.MethodPost)
	protected.HandleFunc("/loans", loanController.List).Methods(http.MethodGet)
	protected.HandleFunc("/loans/{id:[0-9]+}", loanController.Get).Methods(http.MethodGet)
	protected.HandleFunc("/sanction/{id:[0-9]+}/download", loanController.SanctionLetter).Methods(http.MethodGet)

	protected.HandleFunc("/documents/upload", documentController.Upload).Methods(http.MethodPost)
	protected.HandleFunc("/documents", documentController.List).Methods(http.MethodGet)

	protected.HandleFunc("/chat/start", chatController.Start).Methods(http.MethodPost)
	protected.HandleFunc("/chat/{session}/message", chatController.Send).Methods(http.MethodPost)
	protected.HandleFunc("/chat/{session}/history", chatController.History).Methods(http.MethodGet)

	return router
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.IsProduction() {
		utils.SetLogLevel("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	services.NewOTPSweeper(app.verification, cfg.OTP.SweepInterval).Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		utils.LogInfo("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}
}
