// Package seed fills a database with fake forum activity for development and
// load testing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/users"
	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	questionsPerRatio = 10
	answersPerRatio   = 100
	likesPerRatio     = 100
	minTagsPerPost    = 1
	maxTagsPerPost    = 4
	maxTagSuffix      = 10000
	defaultBatchSize  = 500
	createdWithin     = 365 * 24 * time.Hour
)

var (
	errMissingDatabase = errors.New("seed: database handle is required")
	errInvalidRatio    = errors.New("seed: ratio must be positive")
)

// Config describes the generator dependencies. Seed 0 picks a random seed.
type Config struct {
	Database  *gorm.DB
	Logger    *zap.Logger
	Clock     func() time.Time
	Seed      uint64
	BatchSize int
}

// Summary reports how many rows each step stored.
type Summary struct {
	Profiles      int
	Tags          int
	Questions     int
	Answers       int
	QuestionLikes int64
	AnswerLikes   int64
}

// Generator produces fake profiles, tags, questions, answers and votes.
type Generator struct {
	db        *gorm.DB
	faker     *gofakeit.Faker
	logger    *zap.Logger
	clock     func() time.Time
	batchSize int
}

// NewGenerator validates the configuration and builds a Generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Generator{
		db:        cfg.Database,
		faker:     gofakeit.New(cfg.Seed),
		logger:    logger,
		clock:     clock,
		batchSize: batchSize,
	}, nil
}

// Fill creates ratio profiles and tags, ten questions per ratio with one to
// four tags each, a hundred answers per ratio, and a hundred likes per ratio
// for questions and answers alike. Repeated (user, item) votes are skipped.
// Everything runs in one transaction, so a failure leaves no rows behind.
func (g *Generator) Fill(ctx context.Context, ratio int) (Summary, error) {
	if ratio < 1 {
		return Summary{}, errInvalidRatio
	}
	var summary Summary
	txErr := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profileIDs, err := g.createProfiles(tx, ratio)
		if err != nil {
			return fmt.Errorf("seed profiles: %w", err)
		}
		summary.Profiles = len(profileIDs)

		tagIDs, err := g.createTags(tx, ratio)
		if err != nil {
			return fmt.Errorf("seed tags: %w", err)
		}
		summary.Tags = len(tagIDs)

		questionIDs, err := g.createQuestions(tx, questionsPerRatio*ratio, profileIDs, tagIDs)
		if err != nil {
			return fmt.Errorf("seed questions: %w", err)
		}
		summary.Questions = len(questionIDs)

		answerIDs, err := g.createAnswers(tx, answersPerRatio*ratio, profileIDs, questionIDs)
		if err != nil {
			return fmt.Errorf("seed answers: %w", err)
		}
		summary.Answers = len(answerIDs)

		summary.QuestionLikes, err = g.createQuestionLikes(tx, likesPerRatio*ratio, profileIDs, questionIDs)
		if err != nil {
			return fmt.Errorf("seed question likes: %w", err)
		}
		summary.AnswerLikes, err = g.createAnswerLikes(tx, likesPerRatio*ratio, profileIDs, answerIDs)
		if err != nil {
			return fmt.Errorf("seed answer likes: %w", err)
		}

		ratings, err := questions.NewService(questions.ServiceConfig{Database: tx, Clock: g.clock, Logger: g.logger})
		if err != nil {
			return err
		}
		if err := g.recomputeInBatches(ctx, questionIDs, ratings.RecomputeQuestionRatings); err != nil {
			return fmt.Errorf("seed question ratings: %w", err)
		}
		if err := g.recomputeInBatches(ctx, answerIDs, ratings.RecomputeAnswerRatings); err != nil {
			return fmt.Errorf("seed answer ratings: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return Summary{}, txErr
	}

	g.logger.Info("database filled",
		zap.Int("ratio", ratio),
		zap.Int("profiles", summary.Profiles),
		zap.Int("tags", summary.Tags),
		zap.Int("questions", summary.Questions),
		zap.Int("answers", summary.Answers),
		zap.Int64("question_likes", summary.QuestionLikes),
		zap.Int64("answer_likes", summary.AnswerLikes))
	return summary, nil
}

// recomputeInBatches caps each aggregate update at batchSize ids.
func (g *Generator) recomputeInBatches(ctx context.Context, ids []int64, recompute func(context.Context, []int64) error) error {
	for start := 0; start < len(ids); start += g.batchSize {
		end := min(start+g.batchSize, len(ids))
		if err := recompute(ctx, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) createProfiles(db *gorm.DB, count int) ([]string, error) {
	runID := g.faker.LetterN(6)
	profiles := make([]users.Profile, 0, count)
	ids := make([]string, 0, count)
	for index := 0; index < count; index++ {
		userID := fmt.Sprintf("seed-%s-%d", strings.ToLower(runID), index)
		username := fmt.Sprintf("%s%d", g.faker.Username(), index)
		profiles = append(profiles, users.Profile{
			UserID:      userID,
			Provider:    "seed",
			Username:    username,
			Email:       username + "@" + g.faker.DomainName(),
			DisplayName: g.faker.Name(),
			LastSeenAt:  g.pastTime(),
		})
		ids = append(ids, userID)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&profiles, g.batchSize).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (g *Generator) createTags(db *gorm.DB, count int) ([]int64, error) {
	names := make([]string, 0, count)
	for index := 0; index < count; index++ {
		suffix := fmt.Sprintf("_%d_%d", index, g.faker.IntRange(1, maxTagSuffix))
		word := truncateRunes(g.faker.Word(), questions.MaxTagNameLength-utf8.RuneCountInString(suffix))
		names = append(names, word+suffix)
	}
	names, err := questions.NormalizeTagNames(names)
	if err != nil {
		return nil, err
	}
	tags := make([]questions.Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, questions.Tag{Name: name})
	}
	if len(tags) > 0 {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).CreateInBatches(&tags, g.batchSize).Error; err != nil {
			return nil, err
		}
	}
	var ids []int64
	if err := db.Model(&questions.Tag{}).Where("name IN ?", names).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (g *Generator) createQuestions(db *gorm.DB, count int, authorIDs []string, tagIDs []int64) ([]int64, error) {
	rows := make([]questions.Question, 0, count)
	for index := 0; index < count; index++ {
		rows = append(rows, questions.Question{
			AuthorID:  g.pick(authorIDs),
			Title:     truncateRunes(strings.TrimSuffix(g.faker.Sentence(g.faker.IntRange(4, 10)), "."), questions.MaxTitleLength) + "?",
			Text:      g.faker.Paragraph(1, g.faker.IntRange(2, 5), 12, " "),
			CreatedAt: g.pastTime(),
		})
	}
	if err := db.Omit("Tags").CreateInBatches(&rows, g.batchSize).Error; err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	links := make([]questions.QuestionTag, 0, len(rows)*2)
	for _, row := range rows {
		ids = append(ids, row.ID)
		if len(tagIDs) == 0 {
			continue
		}
		wanted := g.faker.IntRange(minTagsPerPost, maxTagsPerPost)
		for _, tagID := range g.sample(tagIDs, wanted) {
			links = append(links, questions.QuestionTag{QuestionID: row.ID, TagID: tagID})
		}
	}
	if len(links) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&links, g.batchSize).Error; err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (g *Generator) createAnswers(db *gorm.DB, count int, authorIDs []string, questionIDs []int64) ([]int64, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	rows := make([]questions.Answer, 0, count)
	for index := 0; index < count; index++ {
		rows = append(rows, questions.Answer{
			QuestionID: questionIDs[g.faker.IntN(len(questionIDs))],
			AuthorID:   g.pick(authorIDs),
			Text:       g.faker.Paragraph(1, g.faker.IntRange(1, 4), 12, " "),
			CreatedAt:  g.pastTime(),
		})
	}
	if err := db.CreateInBatches(&rows, g.batchSize).Error; err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (g *Generator) createQuestionLikes(db *gorm.DB, count int, userIDs []string, questionIDs []int64) (int64, error) {
	if len(questionIDs) == 0 || len(userIDs) == 0 {
		return 0, nil
	}
	rows := make([]questions.QuestionLike, 0, count)
	for index := 0; index < count; index++ {
		rows = append(rows, questions.QuestionLike{
			UserID:     g.pick(userIDs),
			QuestionID: questionIDs[g.faker.IntN(len(questionIDs))],
			Value:      g.voteValue(),
		})
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, g.batchSize)
	return result.RowsAffected, result.Error
}

func (g *Generator) createAnswerLikes(db *gorm.DB, count int, userIDs []string, answerIDs []int64) (int64, error) {
	if len(answerIDs) == 0 || len(userIDs) == 0 {
		return 0, nil
	}
	rows := make([]questions.AnswerLike, 0, count)
	for index := 0; index < count; index++ {
		rows = append(rows, questions.AnswerLike{
			UserID:   g.pick(userIDs),
			AnswerID: answerIDs[g.faker.IntN(len(answerIDs))],
			Value:    g.voteValue(),
		})
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, g.batchSize)
	return result.RowsAffected, result.Error
}

func (g *Generator) voteValue() questions.VoteValue {
	if g.faker.Bool() {
		return questions.VoteLike
	}
	return questions.VoteDislike
}

func (g *Generator) pick(values []string) string {
	return values[g.faker.IntN(len(values))]
}

// sample returns up to n distinct values.
func (g *Generator) sample(values []int64, n int) []int64 {
	if n >= len(values) {
		return append([]int64(nil), values...)
	}
	shuffled := append([]int64(nil), values...)
	g.faker.ShuffleAnySlice(shuffled)
	return shuffled[:n]
}

func (g *Generator) pastTime() time.Time {
	now := g.clock().UTC()
	return g.faker.DateRange(now.Add(-createdWithin), now).UTC()
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
