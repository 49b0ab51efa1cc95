package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/config"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/database"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/seed"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// appRuntime bundles what every command needs after configuration is loaded.
type appRuntime struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
}

func openRuntime() (*appRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &appRuntime{config: appConfig, logger: logger, db: db}, nil
}

func (r *appRuntime) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}

func newFillDBCommand() *cobra.Command {
	var (
		seedValue uint64
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "fill-db <ratio>",
		Short: "Fill the database with generated profiles, questions, answers and votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ratio, err := strconv.Atoi(args[0])
			if err != nil || ratio < 1 {
				return fmt.Errorf("ratio must be a positive integer, got %q", args[0])
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			generator, err := seed.NewGenerator(seed.Config{
				Database:  rt.db,
				Logger:    rt.logger,
				Seed:      seedValue,
				BatchSize: batchSize,
			})
			if err != nil {
				return err
			}

			summary, err := generator.Fill(cmd.Context(), ratio)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profiles=%d tags=%d questions=%d answers=%d question_likes=%d answer_likes=%d\n",
				summary.Profiles, summary.Tags, summary.Questions, summary.Answers, summary.QuestionLikes, summary.AnswerLikes)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seedValue, "seed", 0, "Random seed (0 picks one)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows per insert statement")
	return cmd
}

func newRecomputeRatingsCommand() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "recompute-ratings",
		Short: "Recompute every cached question and answer rating from stored votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			questionsService, err := questions.NewService(questions.ServiceConfig{Database: rt.db, Logger: rt.logger})
			if err != nil {
				return err
			}
			started := time.Now()
			if err := questionsService.RecomputeAllRatings(cmd.Context(), batchSize); err != nil {
				return err
			}
			rt.logger.Info("ratings recomputed", zap.Duration("elapsed", time.Since(started)))
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Items per UPDATE statement")
	return cmd
}

func newIssueSessionCommand() *cobra.Command {
	var (
		email       string
		displayName string
		roles       []string
	)
	cmd := &cobra.Command{
		Use:   "issue-session <user-id>",
		Short: "Print a development session token signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningSecret),
				Issuer:        appConfig.SessionIssuer,
				TokenTTL:      appConfig.SessionTokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      strings.TrimSpace(args[0]),
				Email:       email,
				DisplayName: displayName,
				Roles:       roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n# expires %s\n", appConfig.SessionCookieName, token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name claim")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role claim (repeatable)")
	return cmd
}
