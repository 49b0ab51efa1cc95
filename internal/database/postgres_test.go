package database

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/users"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const postgresImage = "postgres:16-alpine"

func openPostgresContainer(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	if testing.Short() {
		testContext.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(testContext)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("askme"),
		tcpostgres.WithUsername("askme"),
		tcpostgres.WithPassword("askme"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(testContext, container)
	if err != nil {
		testContext.Fatalf("failed to start postgres: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testContext.Fatalf("failed to read postgres dsn: %v", err)
	}

	database, err := Open(Options{Driver: DriverPostgres, DSN: dsn}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open postgres: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	testContext.Cleanup(func() { _ = sqlDB.Close() })
	return database
}

func TestPostgresConcurrentTagsAndVotes(testContext *testing.T) {
	database := openPostgresContainer(testContext)
	service, err := questions.NewService(questions.ServiceConfig{Database: database})
	if err != nil {
		testContext.Fatalf("failed to construct questions service: %v", err)
	}
	ctx := context.Background()

	const writers = 8
	created := make([]questions.Question, writers)
	errs := make(chan error, writers*2)
	var wg sync.WaitGroup
	for index := 0; index < writers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			question, err := service.CreateQuestion(ctx, questions.QuestionDraft{
				AuthorID: fmt.Sprintf("author-%d", index),
				Title:    fmt.Sprintf("Question %d?", index),
				Text:     "Body",
				Tags:     []string{"postgres", "go", fmt.Sprintf("topic-%d", index%2)},
			})
			if err != nil {
				errs <- err
				return
			}
			created[index] = question
		}(index)
	}
	wg.Wait()

	var tagCount int64
	if err := database.Model(&questions.Tag{}).Count(&tagCount).Error; err != nil {
		testContext.Fatalf("failed to count tags: %v", err)
	}
	if tagCount != 4 {
		testContext.Fatalf("expected 4 distinct tags, got %d", tagCount)
	}

	target := created[0].ID
	for index := 0; index < writers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			value := questions.VoteLike
			if index%4 == 0 {
				value = questions.VoteDislike
			}
			if _, err := service.VoteQuestion(ctx, fmt.Sprintf("voter-%d", index), target, value); err != nil {
				errs <- err
			}
		}(index)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		testContext.Fatalf("concurrent write failed: %v", err)
	}

	question, err := service.GetQuestion(ctx, target)
	if err != nil {
		testContext.Fatalf("failed to load question: %v", err)
	}
	if question.Rating != 4 {
		testContext.Fatalf("expected rating 6-2=4, got %d", question.Rating)
	}
	if len(question.Tags) != 3 {
		testContext.Fatalf("expected three tags, got %+v", question.Tags)
	}
}

func TestPostgresConcurrentFirstSightProfiles(testContext *testing.T) {
	database := openPostgresContainer(testContext)
	ctx := context.Background()

	const requests = 12
	errs := make(chan error, requests)
	var wg sync.WaitGroup
	for index := 0; index < requests; index++ {
		// Separate services so no request is answered from a shared cache.
		service, err := users.NewService(users.ServiceConfig{Database: database})
		if err != nil {
			testContext.Fatalf("failed to construct users service: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.ResolveProfile(ctx, auth.SessionClaims{
				UserID:    "google:newcomer",
				UserEmail: "newcomer@example.com",
			}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		testContext.Fatalf("concurrent first sight failed: %v", err)
	}

	var count int64
	if err := database.Model(&users.Profile{}).Where("user_id = ?", "newcomer").Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count profiles: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected one profile row, got %d", count)
	}
}
