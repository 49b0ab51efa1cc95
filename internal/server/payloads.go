package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/users"
)

type authorPayload struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type questionPayload struct {
	ID         int64         `json:"id"`
	Title      string        `json:"title"`
	Text       string        `json:"text"`
	CreatedAt  time.Time     `json:"created_at"`
	Rating     int           `json:"rating"`
	NumAnswers int           `json:"num_answers"`
	Tags       []string      `json:"tags"`
	Author     authorPayload `json:"author"`
}

type answerPayload struct {
	ID         int64         `json:"id"`
	QuestionID int64         `json:"question_id"`
	Text       string        `json:"text"`
	CreatedAt  time.Time     `json:"created_at"`
	Rating     int           `json:"rating"`
	IsCorrect  bool          `json:"is_correct"`
	Author     authorPayload `json:"author"`
}

type pagePayload[T any] struct {
	Items       []T                   `json:"items"`
	Number      int                   `json:"number"`
	TotalPages  int                   `json:"total_pages"`
	TotalItems  int                   `json:"total_items"`
	PerPage     int                   `json:"per_page"`
	HasNext     bool                  `json:"has_next"`
	HasPrevious bool                  `json:"has_previous"`
	Range       []pagination.PageLink `json:"range"`
}

type tagPayload struct {
	Name         string `json:"name"`
	NumQuestions int    `json:"num_questions"`
}

type memberPayload struct {
	authorPayload
	NumAnswers int `json:"num_answers"`
}

type sidebarPayload struct {
	PopularTags []tagPayload    `json:"popular_tags"`
	BestMembers []memberPayload `json:"best_members"`
}

type questionListResponse struct {
	Tag       string                       `json:"tag,omitempty"`
	Order     string                       `json:"order"`
	Questions pagePayload[questionPayload] `json:"questions"`
	Sidebar   sidebarPayload               `json:"sidebar"`
}

type questionDetailResponse struct {
	Question questionPayload            `json:"question"`
	Answers  pagePayload[answerPayload] `json:"answers"`
	Sidebar  sidebarPayload             `json:"sidebar"`
}

type ratingResponse struct {
	ID     int64 `json:"id"`
	Rating int   `json:"rating"`
}

type createQuestionRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Tags  string `json:"tags"`
}

type createAnswerRequest struct {
	Text string `json:"text"`
}

type voteRequest struct {
	Value int `json:"value"`
}

// authors maps user ids to the author block shown next to content. Unknown
// ids still render with the bare id.
type authors map[string]users.Profile

func (a authors) lookup(userID string) authorPayload {
	profile, ok := a[userID]
	if !ok {
		return authorPayload{UserID: userID, Username: userID, DisplayName: userID}
	}
	return newAuthorPayload(profile)
}

func newAuthorPayload(profile users.Profile) authorPayload {
	return authorPayload{
		UserID:      profile.UserID,
		Username:    profile.Username,
		DisplayName: profile.Name(),
		AvatarURL:   profile.AvatarURL,
	}
}

func newQuestionPayload(question questions.Question, known authors) questionPayload {
	tags := make([]string, 0, len(question.Tags))
	for _, tag := range question.Tags {
		tags = append(tags, tag.Name)
	}
	return questionPayload{
		ID:         question.ID,
		Title:      question.Title,
		Text:       question.Text,
		CreatedAt:  question.CreatedAt,
		Rating:     question.Rating,
		NumAnswers: question.NumAnswers,
		Tags:       tags,
		Author:     known.lookup(question.AuthorID),
	}
}

func newAnswerPayload(answer questions.Answer, known authors) answerPayload {
	return answerPayload{
		ID:         answer.ID,
		QuestionID: answer.QuestionID,
		Text:       answer.Text,
		CreatedAt:  answer.CreatedAt,
		Rating:     answer.Rating,
		IsCorrect:  answer.IsCorrect,
		Author:     known.lookup(answer.AuthorID),
	}
}

func newPagePayload[S any, T any](page pagination.Page[S], convert func(S) T) pagePayload[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pagePayload[T]{
		Items:       items,
		Number:      page.Number,
		TotalPages:  page.TotalPages,
		TotalItems:  page.TotalItems,
		PerPage:     page.PerPage,
		HasNext:     page.HasNext(),
		HasPrevious: page.HasPrevious(),
		Range:       page.Range,
	}
}

func newSidebarPayload(tags []questions.Tag, members []users.Profile) sidebarPayload {
	sidebar := sidebarPayload{
		PopularTags: make([]tagPayload, 0, len(tags)),
		BestMembers: make([]memberPayload, 0, len(members)),
	}
	for _, tag := range tags {
		sidebar.PopularTags = append(sidebar.PopularTags, tagPayload{Name: tag.Name, NumQuestions: tag.NumQuestions})
	}
	for _, member := range members {
		sidebar.BestMembers = append(sidebar.BestMembers, memberPayload{
			authorPayload: newAuthorPayload(member),
			NumAnswers:    member.NumAnswers,
		})
	}
	return sidebar
}
