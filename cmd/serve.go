package cmd

import (
	"database/sql"
	"net"

	"github.com/shelfcircle/shelfcircle/app/controller"
	"github.com/shelfcircle/shelfcircle/app/importer"
	"github.com/shelfcircle/shelfcircle/app/mail"
	"github.com/shelfcircle/shelfcircle/app/middleware"
	"github.com/shelfcircle/shelfcircle/app/repository"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server exposing the account, catalog, lending and import APIs.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	bookRepo := repository.NewBookRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	mailer := mail.New(cfg.Mail)
	tokenService := service.NewTokenService(db, tokenRepo, cfg)
	sessionService := service.NewSessionService(cfg)
	accountService := service.NewAccountService(db, userRepo, profileRepo, tokenService, sessionService, mailer, cfg)
	catalogService := service.NewCatalogService(bookRepo, loanRepo)
	lendingService := service.NewLendingService(db, bookRepo, loanRepo, userRepo)
	bookImporter := importer.New(bookRepo)

	startHTTPServer(cfg, accountService, catalogService, lendingService, bookImporter, sessionService)
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func startHTTPServer(
	cfg *config.Config,
	accountService *service.AccountService,
	catalogService *service.CatalogService,
	lendingService *service.LendingService,
	bookImporter *importer.Importer,
	sessionService *service.SessionService,
) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	authController := controller.NewAuthController(accountService, cfg)
	accountController := controller.NewAccountController(accountService, cfg)
	bookController := controller.NewBookController(catalogService, cfg)
	loanController := controller.NewLoanController(lendingService, cfg)
	importController := controller.NewImportController(bookImporter, cfg)
	authMiddleware := middleware.NewAuthMiddleware(sessionService, accountService)

	auth := e.Group("/auth")
	auth.POST("/register", authController.Register)
	auth.POST("/login", authController.Login)
	auth.POST("/password-reset/request", accountController.RequestPasswordReset)
	auth.POST("/password-reset/confirm/:token", accountController.ConfirmPasswordReset)
	auth.GET("/email-change/confirm/:token", accountController.ConfirmEmailChange)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.POST("/password/change", accountController.ChangePassword)
	authProtected.POST("/email-change/request", accountController.RequestEmailChange)
	authProtected.POST("/logout-all", accountController.LogoutAllDevices)

	books := e.Group("/books", authMiddleware.RequireAuth)
	books.POST("", bookController.Create)
	books.GET("", bookController.List)
	books.GET("/lendable", loanController.Lendable)
	books.GET("/:id", bookController.Get)
	books.PUT("/:id", bookController.Update)
	books.PATCH("/:id/availability", bookController.SetAvailability)
	books.POST("/import", importController.Upload)
	books.GET("/import/template", importController.Template)

	loans := e.Group("/loans", authMiddleware.RequireAuth)
	loans.POST("", loanController.Lend)
	loans.GET("/active", loanController.Active)
	loans.GET("/history", loanController.History)
	loans.POST("/:id/return", loanController.Return)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}
