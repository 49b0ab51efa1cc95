package questions

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrQuestionNotFound indicates that no question matches the identifier.
	ErrQuestionNotFound = errors.New("questions: question not found")
	// ErrAnswerNotFound indicates that no answer matches the identifier.
	ErrAnswerNotFound = errors.New("questions: answer not found")
	// ErrTagNotFound indicates that no tag carries the requested name.
	ErrTagNotFound = errors.New("questions: tag not found")
	// ErrInvalidTitle indicates an empty or oversized question title.
	ErrInvalidTitle = errors.New("questions: invalid title")
	// ErrInvalidText indicates an empty question or answer body.
	ErrInvalidText = errors.New("questions: invalid text")
	// ErrMissingAuthor indicates content submitted without an author.
	ErrMissingAuthor = errors.New("questions: author is required")
	// ErrNotQuestionAuthor indicates that only the question author may accept an answer.
	ErrNotQuestionAuthor = errors.New("questions: only the question author may accept answers")
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew          = "questions.service.new"
	opCreateQuestion      = "questions.create_question"
	opAttachTags          = "questions.attach_tags"
	opEnsureTags          = "questions.ensure_tags"
	opCreateAnswer        = "questions.create_answer"
	opMarkCorrect         = "questions.mark_correct_answer"
	opVoteQuestion        = "questions.vote_question"
	opVoteAnswer          = "questions.vote_answer"
	opRetractVote         = "questions.retract_vote"
	opRecomputeRatings    = "questions.recompute_ratings"
	opRecomputeAll        = "questions.recompute_all_ratings"
	opListQuestions       = "questions.list_questions"
	opGetQuestion         = "questions.get_question"
	opGetAnswer           = "questions.get_answer"
	opListAnswers         = "questions.list_answers"
	opPopularTags         = "questions.popular_tags"
	reasonMissingDatabase = "missing_database"
	reasonQueryFailed     = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the questions service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns questions, answers, tags and votes.
type Service struct {
	db      *gorm.DB
	clock   func() time.Time
	logger  *zap.Logger
	flights singleflight.Group
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("questions service error", attrs...)
}

// fail logs and wraps a persistence failure.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}
