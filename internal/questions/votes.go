package questions

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteQuestion records or replaces the user's vote on a question and returns
// the refreshed rating.
func (s *Service) VoteQuestion(ctx context.Context, userID string, questionID int64, value VoteValue) (int, error) {
	vote := &QuestionLike{UserID: strings.TrimSpace(userID), QuestionID: questionID, Value: value}
	return s.castVote(ctx, opVoteQuestion, questionRatings, vote, vote.UserID, questionID, value)
}

// VoteAnswer records or replaces the user's vote on an answer and returns
// the refreshed rating.
func (s *Service) VoteAnswer(ctx context.Context, userID string, answerID int64, value VoteValue) (int, error) {
	vote := &AnswerLike{UserID: strings.TrimSpace(userID), AnswerID: answerID, Value: value}
	return s.castVote(ctx, opVoteAnswer, answerRatings, vote, vote.UserID, answerID, value)
}

// RetractQuestionVote removes the user's vote on a question, if any, and
// returns the refreshed rating.
func (s *Service) RetractQuestionVote(ctx context.Context, userID string, questionID int64) (int, error) {
	return s.retractVote(ctx, questionRatings, userID, questionID)
}

// RetractAnswerVote removes the user's vote on an answer, if any, and returns
// the refreshed rating.
func (s *Service) RetractAnswerVote(ctx context.Context, userID string, answerID int64) (int, error) {
	return s.retractVote(ctx, answerRatings, userID, answerID)
}

func (s *Service) castVote(ctx context.Context, operation string, target ratingTarget, vote any, userID string, itemID int64, value VoteValue) (int, error) {
	if err := s.ready(operation); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrMissingAuthor
	}
	if _, err := NewVoteValue(value.Int()); err != nil {
		return 0, err
	}

	var rating int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, target.newItem(), itemID, target.notFound); err != nil {
			if errors.Is(err, target.notFound) {
				return err
			}
			return s.fail(operation, "item_lookup_failed", err, zap.Int64("id", itemID))
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: target.voteColumn}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(vote).Error; err != nil {
			return s.fail(operation, "vote_upsert_failed", err,
				zap.String("user_id", userID), zap.Int64("id", itemID))
		}
		value, err := target.recomputeOne(tx, itemID)
		if err != nil {
			return s.fail(operation, "rating_update_failed", err, zap.Int64("id", itemID))
		}
		rating = value
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return rating, nil
}

func (s *Service) retractVote(ctx context.Context, target ratingTarget, userID string, itemID int64) (int, error) {
	if err := s.ready(opRetractVote); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrMissingAuthor
	}

	var rating int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, target.newItem(), itemID, target.notFound); err != nil {
			if errors.Is(err, target.notFound) {
				return err
			}
			return s.fail(opRetractVote, "item_lookup_failed", err, zap.Int64("id", itemID))
		}
		if err := tx.Where("user_id = ? AND "+target.voteColumn+" = ?", userID, itemID).
			Delete(target.newVote()).Error; err != nil {
			return s.fail(opRetractVote, "vote_delete_failed", err,
				zap.String("user_id", userID), zap.Int64("id", itemID))
		}
		value, err := target.recomputeOne(tx, itemID)
		if err != nil {
			return s.fail(opRetractVote, "rating_update_failed", err, zap.Int64("id", itemID))
		}
		rating = value
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return rating, nil
}
