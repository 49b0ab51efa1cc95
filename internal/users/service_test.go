package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:askme_users_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	if err := questions.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate question schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveProfileStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "member@example.com",
		UserDisplayName: "Example Member",
		UserAvatarURL:   "https://example.com/avatar.png",
	}
	profile, err := service.ResolveProfile(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.UserID != "12345" {
		t.Fatalf("expected canonical user id without provider prefix, got %q", profile.UserID)
	}
	if profile.Provider != "google" || profile.Username != "member" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	// second call should hit cache and not create a duplicate record.
	profile, err = service.ResolveProfile(context.Background(), claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if profile.UserID != "12345" {
		t.Fatalf("expected canonical user id to remain stable, got %q", profile.UserID)
	}
	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one profile, got %d", count)
	}
}

func TestResolveProfileRefreshesChangedDetails(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	if _, err := service.ResolveProfile(ctx, auth.SessionClaims{UserID: "u-1", UserDisplayName: "Old"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	profile, err := service.ResolveProfile(ctx, auth.SessionClaims{UserID: "u-1", UserDisplayName: "New"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.Name() != "New" {
		t.Fatalf("expected refreshed display name, got %q", profile.Name())
	}
	var stored Profile
	if err := db.Where("user_id = ?", "u-1").Take(&stored).Error; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stored.DisplayName != "New" {
		t.Fatalf("expected stored display name to change, got %q", stored.DisplayName)
	}
}

func TestResolveProfileAdoptsConcurrentlyCreatedRow(t *testing.T) {
	service, db := newTestService(t)

	inserted := false
	err := db.Callback().Create().Before("gorm:create").Register("users_test:competing_insert", func(tx *gorm.DB) {
		if inserted || tx.Statement.Table != (Profile{}).TableName() {
			return
		}
		inserted = true
		if _, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"INSERT INTO profiles (user_id, provider, username) VALUES (?, ?, ?)",
			"race-1", "google", "first-writer"); err != nil {
			_ = tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	profile, err := service.ResolveProfile(context.Background(), auth.SessionClaims{
		UserID:    "google:race-1",
		UserEmail: "second@example.com",
	})
	if err != nil {
		t.Fatalf("resolve should adopt the existing row, got %v", err)
	}
	if !inserted {
		t.Fatalf("expected the competing insert to run")
	}
	if profile.Username != "first-writer" || profile.Email != "second@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	var stored []Profile
	if err := db.Where("user_id = ?", "race-1").Find(&stored).Error; err != nil {
		t.Fatalf("failed to load profiles: %v", err)
	}
	if len(stored) != 1 || stored[0].Email != "second@example.com" {
		t.Fatalf("expected one refreshed profile row, got %+v", stored)
	}
}

func TestResolveProfileRejectsEmptyClaims(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveProfile(context.Background(), auth.SessionClaims{}); err != ErrInvalidIdentity {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestBestMembersOrdersByAnswerCount(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := service.ResolveProfile(ctx, auth.SessionClaims{UserID: id, UserEmail: id + "@example.com"}); err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
	}
	question := questions.Question{AuthorID: "alice", Title: "t", Text: "x", CreatedAt: time.Unix(10, 0)}
	if err := db.Omit("Tags").Create(&question).Error; err != nil {
		t.Fatalf("failed to seed question: %v", err)
	}
	for _, author := range []string{"bob", "bob", "carol"} {
		answer := questions.Answer{QuestionID: question.ID, AuthorID: author, Text: "a", CreatedAt: time.Unix(20, 0)}
		if err := db.Create(&answer).Error; err != nil {
			t.Fatalf("failed to seed answer: %v", err)
		}
	}

	best, err := service.BestMembers(ctx, 2)
	if err != nil {
		t.Fatalf("best members failed: %v", err)
	}
	if len(best) != 2 || best[0].UserID != "bob" || best[1].UserID != "carol" {
		t.Fatalf("unexpected best members %+v", best)
	}
	if best[0].NumAnswers != 2 {
		t.Fatalf("expected 2 answers for bob, got %d", best[0].NumAnswers)
	}

	profiles, err := service.ProfilesByID(ctx, []string{"alice", "ghost", "alice"})
	if err != nil {
		t.Fatalf("profiles by id failed: %v", err)
	}
	if len(profiles) != 1 || profiles["alice"].Username != "alice" {
		t.Fatalf("unexpected profiles %+v", profiles)
	}
}
