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

	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/challenge"
	"github.com/MarcoPoloResearchLab/plate400/internal/config"
	"github.com/MarcoPoloResearchLab/plate400/internal/database"
	"github.com/MarcoPoloResearchLab/plate400/internal/diary"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"github.com/MarcoPoloResearchLab/plate400/internal/logging"
	"github.com/MarcoPoloResearchLab/plate400/internal/media"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/MarcoPoloResearchLab/plate400/internal/server"
	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plate400-api",
		Short: "Plate 400 nutrition diary service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to make credentialed requests")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "TAuth session signing secret (overrides env)")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("tauth.cookie_name"), "TAuth session cookie name")
	cmd.PersistentFlags().String("media-bucket-url", defaults.GetString("media.bucket_url"), "Blob bucket URL for product photos")
	cmd.PersistentFlags().String("timezone", defaults.GetString("app.timezone"), "IANA time zone that defines the calendar day")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "tauth.cookie_name", "cookie-name")
	bindFlag(cmd, "media.bucket_url", "media-bucket-url")
	bindFlag(cmd, "app.timezone", "timezone")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := ids.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	challengeService, err := challenge.NewService(challenge.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Location:   appConfig.Location,
		Target:     appConfig.ChallengeTarget,
		LengthDays: appConfig.ChallengeLengthDays,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	socialService, err := social.NewService(social.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	diaryService, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Challenges: challengeService,
		Events:     socialService,
		Clock:      time.Now,
		Location:   appConfig.Location,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	moderationService, err := moderation.NewService(moderation.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Catalog:    catalogService,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mediaStore, err := media.OpenStore(ctx, media.StoreConfig{
		BucketURL:  appConfig.MediaBucketURL,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer mediaStore.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            usersService,
		Catalog:          catalogService,
		Challenges:       challengeService,
		Diary:            diaryService,
		Moderation:       moderationService,
		Social:           socialService,
		Media:            mediaStore,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("timezone", appConfig.Location.String()),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newSessionCommand mints a local session cookie value for development without TAuth.
func newSessionCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
		roles       []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print a signed session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      userID,
				Email:       email,
				DisplayName: displayName,
				Roles:       roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", appConfig.TAuthCookieName, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "Session user id")
	cmd.Flags().StringVar(&email, "email", "", "Session e-mail")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Roles, e.g. moderator")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Session lifetime (defaults to the issuer default)")
	return cmd
}
