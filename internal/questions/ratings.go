package questions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRecomputeBatch = 500

// ratingTarget binds a rated table to the vote table that feeds it.
type ratingTarget struct {
	kind       string
	newItem    func() any
	newVote    func() any
	itemTable  string
	voteTable  string
	voteColumn string
	notFound   error
}

var (
	questionRatings = ratingTarget{
		kind:       "question",
		newItem:    func() any { return &Question{} },
		newVote:    func() any { return &QuestionLike{} },
		itemTable:  Question{}.TableName(),
		voteTable:  QuestionLike{}.TableName(),
		voteColumn: "question_id",
		notFound:   ErrQuestionNotFound,
	}
	answerRatings = ratingTarget{
		kind:       "answer",
		newItem:    func() any { return &Answer{} },
		newVote:    func() any { return &AnswerLike{} },
		itemTable:  Answer{}.TableName(),
		voteTable:  AnswerLike{}.TableName(),
		voteColumn: "answer_id",
		notFound:   ErrAnswerNotFound,
	}
)

// recompute sets rating to the vote sum for every id in one statement. Items
// without votes get 0.
func (target ratingTarget) recompute(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	voteSum := tx.Model(target.newVote()).
		Select("COALESCE(SUM(value), 0)").
		Where(fmt.Sprintf("%s.%s = %s.id", target.voteTable, target.voteColumn, target.itemTable))
	return tx.Model(target.newItem()).
		Where(queryIDIn, ids).
		Update("rating", voteSum).Error
}

// current reads the cached rating of one item.
func (target ratingTarget) current(tx *gorm.DB, id int64) (int, error) {
	var ratings []int
	if err := tx.Model(target.newItem()).Where(queryIDEquals, id).Pluck("rating", &ratings).Error; err != nil {
		return 0, err
	}
	if len(ratings) == 0 {
		return 0, target.notFound
	}
	return ratings[0], nil
}

func (target ratingTarget) recomputeOne(tx *gorm.DB, id int64) (int, error) {
	if err := target.recompute(tx, []int64{id}); err != nil {
		return 0, err
	}
	return target.current(tx, id)
}

// RecomputeQuestionRating refreshes and returns the cached rating of one question.
func (s *Service) RecomputeQuestionRating(ctx context.Context, questionID int64) (int, error) {
	return s.recomputeRating(ctx, questionRatings, questionID)
}

// RecomputeAnswerRating refreshes and returns the cached rating of one answer.
func (s *Service) RecomputeAnswerRating(ctx context.Context, answerID int64) (int, error) {
	return s.recomputeRating(ctx, answerRatings, answerID)
}

// RecomputeQuestionRatings refreshes the cached rating of every listed question
// with a single aggregate update.
func (s *Service) RecomputeQuestionRatings(ctx context.Context, questionIDs []int64) error {
	return s.recomputeRatings(ctx, questionRatings, questionIDs)
}

// RecomputeAnswerRatings refreshes the cached rating of every listed answer
// with a single aggregate update.
func (s *Service) RecomputeAnswerRatings(ctx context.Context, answerIDs []int64) error {
	return s.recomputeRatings(ctx, answerRatings, answerIDs)
}

// RecomputeAllRatings walks every question and answer in id order and
// refreshes their ratings batchSize rows at a time.
func (s *Service) RecomputeAllRatings(ctx context.Context, batchSize int) error {
	if err := s.ready(opRecomputeAll); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = defaultRecomputeBatch
	}
	for _, target := range []ratingTarget{questionRatings, answerRatings} {
		updated, err := s.recomputeTable(ctx, target, batchSize)
		if err != nil {
			return err
		}
		s.loggerOrDefault().Info("ratings recomputed",
			zap.String("kind", target.kind),
			zap.Int("rows", updated))
	}
	return nil
}

func (s *Service) recomputeTable(ctx context.Context, target ratingTarget, batchSize int) (int, error) {
	db := s.db.WithContext(ctx)
	var lastID int64
	updated := 0
	for {
		var ids []int64
		if err := db.Model(target.newItem()).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return updated, s.fail(opRecomputeAll, "id_scan_failed", err, zap.String("kind", target.kind))
		}
		if len(ids) == 0 {
			return updated, nil
		}
		if err := target.recompute(db, ids); err != nil {
			return updated, s.fail(opRecomputeAll, "rating_update_failed", err, zap.String("kind", target.kind))
		}
		updated += len(ids)
		lastID = ids[len(ids)-1]
	}
}

func (s *Service) recomputeRating(ctx context.Context, target ratingTarget, id int64) (int, error) {
	if err := s.ready(opRecomputeRatings); err != nil {
		return 0, err
	}
	var rating int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		value, err := target.recomputeOne(tx, id)
		if errors.Is(err, target.notFound) {
			return err
		}
		if err != nil {
			return s.fail(opRecomputeRatings, "rating_update_failed", err,
				zap.String("kind", target.kind), zap.Int64("id", id))
		}
		rating = value
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return rating, nil
}

func (s *Service) recomputeRatings(ctx context.Context, target ratingTarget, ids []int64) error {
	if err := s.ready(opRecomputeRatings); err != nil {
		return err
	}
	if err := target.recompute(s.db.WithContext(ctx), ids); err != nil {
		return s.fail(opRecomputeRatings, "rating_update_failed", err,
			zap.String("kind", target.kind), zap.Int("ids", len(ids)))
	}
	return nil
}
