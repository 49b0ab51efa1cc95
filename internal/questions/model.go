package questions

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxTagNameLength bounds tag names, counted in characters.
	MaxTagNameLength = 50
	// MaxTitleLength bounds question titles, counted in characters.
	MaxTitleLength = 255
)

// VoteValue is the signed weight of a single like or dislike.
type VoteValue int

const (
	// VoteLike adds one to the rating.
	VoteLike VoteValue = 1
	// VoteDislike subtracts one from the rating.
	VoteDislike VoteValue = -1
)

// ErrInvalidVoteValue indicates a vote that is neither a like nor a dislike.
var ErrInvalidVoteValue = errors.New("questions: vote value must be 1 or -1")

// NewVoteValue validates a raw vote value.
func NewVoteValue(value int) (VoteValue, error) {
	switch VoteValue(value) {
	case VoteLike, VoteDislike:
		return VoteValue(value), nil
	default:
		return 0, fmt.Errorf("%w: got %d", ErrInvalidVoteValue, value)
	}
}

// Int returns the raw weight.
func (v VoteValue) Int() int {
	return int(v)
}

// Tag is a topic label shared between questions.
type Tag struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string `gorm:"column:name;size:50;not null;uniqueIndex:idx_tags_name"`
	NumQuestions int    `gorm:"column:num_questions;->;-:migration"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// Question is a titled post that collects answers and votes. Rating caches the
// sum of its QuestionLike values.
type Question struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AuthorID   string    `gorm:"column:author_id;size:190;not null;index:idx_questions_author"`
	Title      string    `gorm:"column:title;size:255;not null"`
	Text       string    `gorm:"column:text;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_questions_created"`
	Rating     int       `gorm:"column:rating;not null;default:0;index:idx_questions_rating"`
	Tags       []Tag     `gorm:"many2many:question_tags"`
	NumAnswers int       `gorm:"column:num_answers;->;-:migration"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "questions"
}

// QuestionTag associates a question with a tag.
type QuestionTag struct {
	QuestionID int64 `gorm:"column:question_id;primaryKey;autoIncrement:false"`
	TagID      int64 `gorm:"column:tag_id;primaryKey;autoIncrement:false;index:idx_question_tags_tag"`
}

// TableName provides the explicit table binding for GORM.
func (QuestionTag) TableName() string {
	return "question_tags"
}

// Answer is a reply to a question. Rating caches the sum of its AnswerLike values.
type Answer struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	QuestionID int64     `gorm:"column:question_id;not null;index:idx_answers_question"`
	AuthorID   string    `gorm:"column:author_id;size:190;not null;index:idx_answers_author"`
	Text       string    `gorm:"column:text;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	IsCorrect  bool      `gorm:"column:is_correct;not null;default:false"`
	Rating     int       `gorm:"column:rating;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "answers"
}

// QuestionLike is one user's vote on a question.
type QuestionLike struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_question_likes_user_question,priority:1"`
	QuestionID int64     `gorm:"column:question_id;not null;uniqueIndex:idx_question_likes_user_question,priority:2;index:idx_question_likes_question"`
	Value      VoteValue `gorm:"column:value;not null"`
}

// TableName provides the explicit table binding for GORM.
func (QuestionLike) TableName() string {
	return "question_likes"
}

// AnswerLike is one user's vote on an answer.
type AnswerLike struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID   string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_answer_likes_user_answer,priority:1"`
	AnswerID int64     `gorm:"column:answer_id;not null;uniqueIndex:idx_answer_likes_user_answer,priority:2;index:idx_answer_likes_answer"`
	Value    VoteValue `gorm:"column:value;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AnswerLike) TableName() string {
	return "answer_likes"
}

// QuestionDraft is the validated-on-create input for a new question.
type QuestionDraft struct {
	AuthorID string
	Title    string
	Text     string
	Tags     []string
}

// AnswerDraft is the input for a new answer.
type AnswerDraft struct {
	QuestionID int64
	AuthorID   string
	Text       string
}
