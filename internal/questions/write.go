package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateQuestion validates the draft, then stores the question and its tag
// associations in one transaction so readers never observe a partial tag set.
func (s *Service) CreateQuestion(ctx context.Context, draft QuestionDraft) (Question, error) {
	if err := s.ready(opCreateQuestion); err != nil {
		return Question{}, err
	}

	authorID := strings.TrimSpace(draft.AuthorID)
	if authorID == "" {
		return Question{}, ErrMissingAuthor
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return Question{}, fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return Question{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, MaxTitleLength)
	}
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return Question{}, fmt.Errorf("%w: empty question body", ErrInvalidText)
	}
	tagNames, err := NormalizeTagNames(draft.Tags)
	if err != nil {
		return Question{}, err
	}

	question := Question{
		AuthorID:  authorID,
		Title:     title,
		Text:      text,
		CreatedAt: s.now(),
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags").Create(&question).Error; err != nil {
			return s.fail(opCreateQuestion, "question_insert_failed", err, zap.String("author_id", authorID))
		}
		tags, err := upsertTagsByName(tx, tagNames)
		if err != nil {
			return s.fail(opCreateQuestion, "tag_upsert_failed", err, zap.Int64("question_id", question.ID))
		}
		if err := linkTags(tx, question.ID, tags); err != nil {
			return s.fail(opCreateQuestion, "tag_link_failed", err, zap.Int64("question_id", question.ID))
		}
		question.Tags = tags
		return nil
	})
	if txErr != nil {
		return Question{}, txErr
	}

	s.loggerOrDefault().Debug("question created",
		zap.Int64("question_id", question.ID),
		zap.Int("tags", len(question.Tags)))
	return question, nil
}

// AttachTags upserts the candidate tag names and associates them with the
// question. Validation runs before any write; the writes share one transaction
// and repeating the call leaves exactly one association per pair.
func (s *Service) AttachTags(ctx context.Context, questionID int64, candidates []string) error {
	if err := s.ready(opAttachTags); err != nil {
		return err
	}
	names, err := NormalizeTagNames(candidates)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Question{}, questionID, ErrQuestionNotFound); err != nil {
			if errors.Is(err, ErrQuestionNotFound) {
				return err
			}
			return s.fail(opAttachTags, "question_lookup_failed", err, zap.Int64("question_id", questionID))
		}
		tags, err := upsertTagsByName(tx, names)
		if err != nil {
			return s.fail(opAttachTags, "tag_upsert_failed", err, zap.Int64("question_id", questionID))
		}
		if err := linkTags(tx, questionID, tags); err != nil {
			return s.fail(opAttachTags, "tag_link_failed", err, zap.Int64("question_id", questionID))
		}
		return nil
	})
}

// EnsureTags creates any missing tags and returns all matching rows.
func (s *Service) EnsureTags(ctx context.Context, candidates []string) ([]Tag, error) {
	if err := s.ready(opEnsureTags); err != nil {
		return nil, err
	}
	names, err := NormalizeTagNames(candidates)
	if err != nil {
		return nil, err
	}
	var tags []Tag
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := upsertTagsByName(tx, names)
		if err != nil {
			return s.fail(opEnsureTags, "tag_upsert_failed", err)
		}
		tags = resolved
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return tags, nil
}

// CreateAnswer stores a reply to an existing question.
func (s *Service) CreateAnswer(ctx context.Context, draft AnswerDraft) (Answer, error) {
	if err := s.ready(opCreateAnswer); err != nil {
		return Answer{}, err
	}
	authorID := strings.TrimSpace(draft.AuthorID)
	if authorID == "" {
		return Answer{}, ErrMissingAuthor
	}
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return Answer{}, fmt.Errorf("%w: empty answer body", ErrInvalidText)
	}

	answer := Answer{
		QuestionID: draft.QuestionID,
		AuthorID:   authorID,
		Text:       text,
		CreatedAt:  s.now(),
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Question{}, draft.QuestionID, ErrQuestionNotFound); err != nil {
			if errors.Is(err, ErrQuestionNotFound) {
				return err
			}
			return s.fail(opCreateAnswer, "question_lookup_failed", err, zap.Int64("question_id", draft.QuestionID))
		}
		if err := tx.Create(&answer).Error; err != nil {
			return s.fail(opCreateAnswer, "answer_insert_failed", err, zap.Int64("question_id", draft.QuestionID))
		}
		return nil
	})
	if txErr != nil {
		return Answer{}, txErr
	}
	return answer, nil
}

// MarkCorrectAnswer flags the answer as accepted and clears the flag on its
// siblings. Only the author of the question may do this.
func (s *Service) MarkCorrectAnswer(ctx context.Context, actorID string, answerID int64) (Answer, error) {
	if err := s.ready(opMarkCorrect); err != nil {
		return Answer{}, err
	}

	var answer Answer
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(queryIDEquals, answerID).Take(&answer).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAnswerNotFound
		}
		if err != nil {
			return s.fail(opMarkCorrect, "answer_lookup_failed", err, zap.Int64("answer_id", answerID))
		}

		var question Question
		err = tx.Where(queryIDEquals, answer.QuestionID).Take(&question).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		if err != nil {
			return s.fail(opMarkCorrect, "question_lookup_failed", err, zap.Int64("question_id", answer.QuestionID))
		}
		if question.AuthorID != strings.TrimSpace(actorID) {
			return ErrNotQuestionAuthor
		}

		if err := tx.Model(&Answer{}).
			Where("question_id = ? AND id <> ?", answer.QuestionID, answer.ID).
			Update("is_correct", false).Error; err != nil {
			return s.fail(opMarkCorrect, "answer_reset_failed", err, zap.Int64("question_id", answer.QuestionID))
		}
		if err := tx.Model(&Answer{}).
			Where(queryIDEquals, answer.ID).
			Update("is_correct", true).Error; err != nil {
			return s.fail(opMarkCorrect, "answer_update_failed", err, zap.Int64("answer_id", answer.ID))
		}
		answer.IsCorrect = true
		return nil
	})
	if txErr != nil {
		return Answer{}, txErr
	}
	return answer, nil
}

// lockRow takes a row lock on the item so concurrent rating recomputes see
// each other's votes. SQLite ignores the locking clause.
func lockRow(tx *gorm.DB, model any, id int64, notFound error) error {
	var ids []int64
	if err := tx.Model(model).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryIDEquals, id).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return notFound
	}
	return nil
}

// requireRow returns notFound when no row of model has the identifier.
func requireRow(tx *gorm.DB, model any, id int64, notFound error) error {
	var count int64
	if err := tx.Model(model).Where(queryIDEquals, id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
