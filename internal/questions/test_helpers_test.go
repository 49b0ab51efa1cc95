package questions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// steppingClock advances one minute per reading so creation order is observable.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Minute)
	return c.current
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:askme_questions_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    newSteppingClock().Now,
	})
	if err != nil {
		t.Fatalf("failed to construct questions service: %v", err)
	}
	return service, db
}

func mustCreateQuestion(t *testing.T, service *Service, title string, tags ...string) Question {
	t.Helper()
	question, err := service.CreateQuestion(context.Background(), QuestionDraft{
		AuthorID: "author-1",
		Title:    title,
		Text:     "body of " + title,
		Tags:     tags,
	})
	if err != nil {
		t.Fatalf("unexpected create question error: %v", err)
	}
	return question
}

func mustCreateAnswer(t *testing.T, service *Service, questionID int64, authorID string) Answer {
	t.Helper()
	answer, err := service.CreateAnswer(context.Background(), AnswerDraft{
		QuestionID: questionID,
		AuthorID:   authorID,
		Text:       "an answer by " + authorID,
	})
	if err != nil {
		t.Fatalf("unexpected create answer error: %v", err)
	}
	return answer
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func tagNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}
