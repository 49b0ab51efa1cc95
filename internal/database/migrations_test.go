package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestOpenRunsMigrationsOnce(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := Open(Options{Driver: DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	var records []migrationRecord
	if err := database.Order("name").Find(&records).Error; err != nil {
		testContext.Fatalf("failed to list migrations: %v", err)
	}
	if len(records) != 1 || records[0].Name != migrationBackfillCachedRatings {
		testContext.Fatalf("unexpected migration records %+v", records)
	}
	if records[0].AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := Migrate(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-running migrations should be a no-op: %v", err)
	}
	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected 1 migration record, got %d", count)
	}
}

func TestApplyMigrationsBackfillsCachedRatings(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "stale.db")
	database := openBareSQLite(testContext, databasePath)

	question := questions.Question{AuthorID: "alice", Title: "t", Text: "x", CreatedAt: time.Unix(1, 0), Rating: 9}
	if err := database.Omit("Tags").Create(&question).Error; err != nil {
		testContext.Fatalf("failed to insert question: %v", err)
	}
	votes := []questions.QuestionLike{
		{UserID: "bob", QuestionID: question.ID, Value: questions.VoteLike},
		{UserID: "carol", QuestionID: question.ID, Value: questions.VoteLike},
	}
	if err := database.Create(&votes).Error; err != nil {
		testContext.Fatalf("failed to insert votes: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored questions.Question
	if err := database.Where("id = ?", question.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload question: %v", err)
	}
	if stored.Rating != 2 {
		testContext.Fatalf("expected rating backfilled to 2, got %d", stored.Rating)
	}
	if stored.AuthorID != "alice" {
		testContext.Fatalf("expected author id untouched, got %q", stored.AuthorID)
	}
}

func TestDialectorForRejectsIncompleteOptions(testContext *testing.T) {
	testCases := []Options{
		{Driver: DriverSQLite},
		{Driver: DriverPostgres},
		{Driver: "oracle", Path: "x"},
	}
	for _, options := range testCases {
		if _, _, err := dialectorFor(options); err == nil {
			testContext.Fatalf("expected error for %+v", options)
		}
	}
}

func openBareSQLite(testContext *testing.T, path string) *gorm.DB {
	testContext.Helper()
	dialector, _, err := dialectorFor(Options{Driver: DriverSQLite, Path: path})
	if err != nil {
		testContext.Fatalf("failed to build dialector: %v", err)
	}
	database, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := questions.AutoMigrate(database); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	if err := database.AutoMigrate(&migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate ledger: %v", err)
	}
	return database
}
