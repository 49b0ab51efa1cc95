package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuestionOrder selects how question listings are sorted.
type QuestionOrder string

const (
	// OrderNewest lists the most recently asked questions first.
	OrderNewest QuestionOrder = "new"
	// OrderHot lists the highest rated questions first; ties go to the newer question.
	OrderHot QuestionOrder = "hot"
)

const (
	selectQuestionWithAnswerCount = "questions.*, (SELECT COUNT(*) FROM answers WHERE answers.question_id = questions.id) AS num_answers"
	orderQuestionsNewest          = "questions.created_at DESC, questions.id DESC"
	orderQuestionsHot             = "questions.rating DESC, questions.created_at DESC, questions.id DESC"
	orderAnswers                  = "answers.is_correct DESC, answers.rating DESC, answers.created_at ASC, answers.id ASC"
	orderTagsByName               = "tags.name ASC"
)

func (o QuestionOrder) clause() string {
	if o == OrderHot {
		return orderQuestionsHot
	}
	return orderQuestionsNewest
}

// ListQuestions returns one page of all questions in the requested order.
func (s *Service) ListQuestions(ctx context.Context, order QuestionOrder, request pagination.PageRequest, perPage int) (pagination.Page[Question], error) {
	if err := s.ready(opListQuestions); err != nil {
		return pagination.Page[Question]{}, err
	}
	return s.pageQuestions(ctx, func(db *gorm.DB) *gorm.DB { return db }, order, request, perPage)
}

// ListNewQuestions is ListQuestions ordered by recency.
func (s *Service) ListNewQuestions(ctx context.Context, request pagination.PageRequest, perPage int) (pagination.Page[Question], error) {
	return s.ListQuestions(ctx, OrderNewest, request, perPage)
}

// ListHotQuestions is ListQuestions ordered by rating.
func (s *Service) ListHotQuestions(ctx context.Context, request pagination.PageRequest, perPage int) (pagination.Page[Question], error) {
	return s.ListQuestions(ctx, OrderHot, request, perPage)
}

// ListTaggedQuestions returns one page of the newest questions carrying the tag.
func (s *Service) ListTaggedQuestions(ctx context.Context, tagName string, request pagination.PageRequest, perPage int) (pagination.Page[Question], error) {
	if err := s.ready(opListQuestions); err != nil {
		return pagination.Page[Question]{}, err
	}
	tag, err := s.FindTag(ctx, tagName)
	if err != nil {
		return pagination.Page[Question]{}, err
	}
	filter := func(db *gorm.DB) *gorm.DB {
		tagged := db.Session(&gorm.Session{NewDB: true}).
			Model(&QuestionTag{}).
			Select("question_id").
			Where("tag_id = ?", tag.ID)
		return db.Where("questions.id IN (?)", tagged)
	}
	return s.pageQuestions(ctx, filter, OrderNewest, request, perPage)
}

// FindTag looks up a tag by its exact name.
func (s *Service) FindTag(ctx context.Context, name string) (Tag, error) {
	if err := s.ready(opListQuestions); err != nil {
		return Tag{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, ErrTagNotFound
	}
	var tag Tag
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tag{}, ErrTagNotFound
	}
	if err != nil {
		return Tag{}, s.fail(opListQuestions, "tag_lookup_failed", err, zap.String("tag", name))
	}
	return tag, nil
}

func (s *Service) pageQuestions(ctx context.Context, filter func(*gorm.DB) *gorm.DB, order QuestionOrder, request pagination.PageRequest, perPage int) (pagination.Page[Question], error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := filter(db.Model(&Question{})).Count(&total).Error; err != nil {
		return pagination.Page[Question]{}, s.fail(opListQuestions, "count_failed", err)
	}
	window, err := pagination.NewWindow(int(total), request, perPage)
	if err != nil {
		return pagination.Page[Question]{}, err
	}

	var items []Question
	if err := filter(questionsWithDetails(db)).
		Order(order.clause()).
		Offset(window.Offset()).
		Limit(window.Limit()).
		Find(&items).Error; err != nil {
		return pagination.Page[Question]{}, s.fail(opListQuestions, reasonQueryFailed, err,
			zap.String("order", string(order)), zap.Int("page", window.Number))
	}
	return pagination.NewPage(items, window), nil
}

// GetQuestion loads one question with its tags and answer count.
func (s *Service) GetQuestion(ctx context.Context, questionID int64) (Question, error) {
	if err := s.ready(opGetQuestion); err != nil {
		return Question{}, err
	}
	var question Question
	err := questionsWithDetails(s.db.WithContext(ctx)).
		Where("questions.id = ?", questionID).
		Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, s.fail(opGetQuestion, reasonQueryFailed, err, zap.Int64("question_id", questionID))
	}
	return question, nil
}

// GetAnswer loads one answer.
func (s *Service) GetAnswer(ctx context.Context, answerID int64) (Answer, error) {
	if err := s.ready(opGetAnswer); err != nil {
		return Answer{}, err
	}
	var answer Answer
	err := s.db.WithContext(ctx).Where(queryIDEquals, answerID).Take(&answer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Answer{}, ErrAnswerNotFound
	}
	if err != nil {
		return Answer{}, s.fail(opGetAnswer, reasonQueryFailed, err, zap.Int64("answer_id", answerID))
	}
	return answer, nil
}

// ListAnswers returns one page of a question's answers: the accepted answer
// first, then by rating, then oldest first.
func (s *Service) ListAnswers(ctx context.Context, questionID int64, request pagination.PageRequest, perPage int) (pagination.Page[Answer], error) {
	if err := s.ready(opListAnswers); err != nil {
		return pagination.Page[Answer]{}, err
	}
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&Answer{}).Where("question_id = ?", questionID).Count(&total).Error; err != nil {
		return pagination.Page[Answer]{}, s.fail(opListAnswers, "count_failed", err, zap.Int64("question_id", questionID))
	}
	window, err := pagination.NewWindow(int(total), request, perPage)
	if err != nil {
		return pagination.Page[Answer]{}, err
	}

	var answers []Answer
	if err := db.Where("question_id = ?", questionID).
		Order(orderAnswers).
		Offset(window.Offset()).
		Limit(window.Limit()).
		Find(&answers).Error; err != nil {
		return pagination.Page[Answer]{}, s.fail(opListAnswers, reasonQueryFailed, err, zap.Int64("question_id", questionID))
	}
	return pagination.NewPage(answers, window), nil
}

// PopularTags returns the tags attached to the most questions. Concurrent
// calls with the same limit share one query.
func (s *Service) PopularTags(ctx context.Context, limit int) ([]Tag, error) {
	if err := s.ready(opPopularTags); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Tag{}, nil
	}
	shared, err, _ := s.flights.Do(fmt.Sprintf("popular_tags:%d", limit), func() (any, error) {
		var tags []Tag
		if err := s.db.WithContext(context.WithoutCancel(ctx)).
			Model(&Tag{}).
			Select("tags.id, tags.name, COUNT(question_tags.question_id) AS num_questions").
			Joins("LEFT JOIN question_tags ON question_tags.tag_id = tags.id").
			Group("tags.id, tags.name").
			Order("num_questions DESC, " + orderTagsByName).
			Limit(limit).
			Find(&tags).Error; err != nil {
			return nil, s.fail(opPopularTags, reasonQueryFailed, err)
		}
		return tags, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Tag(nil), shared.([]Tag)...), nil
}

func questionsWithDetails(db *gorm.DB) *gorm.DB {
	return db.Model(&Question{}).
		Select(selectQuestionWithAnswerCount).
		Preload("Tags", func(tx *gorm.DB) *gorm.DB {
			return tx.Order(orderTagsByName)
		})
}
