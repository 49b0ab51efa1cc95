package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidIdentifier = errors.New("identifier must be a positive integer")

func (h *httpHandler) handleListNewQuestions(c *gin.Context) {
	page, err := h.questions.ListNewQuestions(c.Request.Context(), pageRequest(c), h.perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondQuestionList(c, questions.OrderNewest, "", page)
}

func (h *httpHandler) handleListHotQuestions(c *gin.Context) {
	page, err := h.questions.ListHotQuestions(c.Request.Context(), pageRequest(c), h.perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondQuestionList(c, questions.OrderHot, "", page)
}

func (h *httpHandler) handleListTaggedQuestions(c *gin.Context) {
	tagName := c.Param("name")
	page, err := h.questions.ListTaggedQuestions(c.Request.Context(), tagName, pageRequest(c), h.perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondQuestionList(c, questions.OrderNewest, strings.TrimSpace(tagName), page)
}

func (h *httpHandler) respondQuestionList(c *gin.Context, order questions.QuestionOrder, tag string, page pagination.Page[questions.Question]) {
	authorIDs := make([]string, 0, len(page.Items))
	for _, question := range page.Items {
		authorIDs = append(authorIDs, question.AuthorID)
	}
	known, err := h.users.ProfilesByID(c.Request.Context(), authorIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sidebar, err := h.sidebar(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questionListResponse{
		Tag:   tag,
		Order: string(order),
		Questions: newPagePayload(page, func(question questions.Question) questionPayload {
			return newQuestionPayload(question, known)
		}),
		Sidebar: sidebar,
	})
}

func (h *httpHandler) handleGetQuestion(c *gin.Context) {
	questionID, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	question, err := h.questions.GetQuestion(ctx, questionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	answers, err := h.questions.ListAnswers(ctx, questionID, pageRequest(c), h.perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}

	authorIDs := []string{question.AuthorID}
	for _, answer := range answers.Items {
		authorIDs = append(authorIDs, answer.AuthorID)
	}
	known, err := h.users.ProfilesByID(ctx, authorIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sidebar, err := h.sidebar(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questionDetailResponse{
		Question: newQuestionPayload(question, known),
		Answers: newPagePayload(answers, func(answer questions.Answer) answerPayload {
			return newAnswerPayload(answer, known)
		}),
		Sidebar: sidebar,
	})
}

func (h *httpHandler) handleCreateQuestion(c *gin.Context) {
	profile, ok := currentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "session.unauthorized"})
		return
	}
	var request createQuestionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "request.malformed"})
		return
	}

	question, err := h.questions.CreateQuestion(c.Request.Context(), questions.QuestionDraft{
		AuthorID: profile.UserID,
		Title:    request.Title,
		Text:     request.Text,
		Tags:     questions.ParseTagList(request.Tags),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newQuestionPayload(question, authors{profile.UserID: profile}))
}

func (h *httpHandler) handleCreateAnswer(c *gin.Context) {
	profile, ok := currentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "session.unauthorized"})
		return
	}
	questionID, ok := h.pathID(c)
	if !ok {
		return
	}
	var request createAnswerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "request.malformed"})
		return
	}

	answer, err := h.questions.CreateAnswer(c.Request.Context(), questions.AnswerDraft{
		QuestionID: questionID,
		AuthorID:   profile.UserID,
		Text:       request.Text,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.answers.Inc()
	h.realtime.Publish(RealtimeMessage{
		QuestionID: questionID,
		EventType:  RealtimeEventAnswerCreated,
		TargetKind: targetAnswer,
		TargetID:   answer.ID,
		Timestamp:  answer.CreatedAt,
	})
	c.JSON(http.StatusCreated, newAnswerPayload(answer, authors{profile.UserID: profile}))
}

func (h *httpHandler) handleVoteQuestion(c *gin.Context) {
	h.changeQuestionVote(c, true)
}

func (h *httpHandler) handleRetractQuestionVote(c *gin.Context) {
	h.changeQuestionVote(c, false)
}

func (h *httpHandler) changeQuestionVote(c *gin.Context, cast bool) {
	profile, ok := currentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "session.unauthorized"})
		return
	}
	questionID, ok := h.pathID(c)
	if !ok {
		return
	}

	var (
		rating int
		err    error
	)
	if cast {
		value, valid := bindVote(c)
		if !valid {
			return
		}
		rating, err = h.questions.VoteQuestion(c.Request.Context(), profile.UserID, questionID, value)
	} else {
		rating, err = h.questions.RetractQuestionVote(c.Request.Context(), profile.UserID, questionID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.observeVote(targetQuestion, cast)
	h.publishRating(questionID, targetQuestion, questionID, rating)
	c.JSON(http.StatusOK, ratingResponse{ID: questionID, Rating: rating})
}

func (h *httpHandler) handleVoteAnswer(c *gin.Context) {
	h.changeAnswerVote(c, true)
}

func (h *httpHandler) handleRetractAnswerVote(c *gin.Context) {
	h.changeAnswerVote(c, false)
}

func (h *httpHandler) changeAnswerVote(c *gin.Context, cast bool) {
	profile, ok := currentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "session.unauthorized"})
		return
	}
	answerID, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	answer, err := h.questions.GetAnswer(ctx, answerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var rating int
	if cast {
		value, valid := bindVote(c)
		if !valid {
			return
		}
		rating, err = h.questions.VoteAnswer(ctx, profile.UserID, answerID, value)
	} else {
		rating, err = h.questions.RetractAnswerVote(ctx, profile.UserID, answerID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.observeVote(targetAnswer, cast)
	h.publishRating(answer.QuestionID, targetAnswer, answerID, rating)
	c.JSON(http.StatusOK, ratingResponse{ID: answerID, Rating: rating})
}

func (h *httpHandler) handleMarkCorrectAnswer(c *gin.Context) {
	profile, ok := currentProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "session.unauthorized"})
		return
	}
	answerID, ok := h.pathID(c)
	if !ok {
		return
	}
	answer, err := h.questions.MarkCorrectAnswer(c.Request.Context(), profile.UserID, answerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	known, err := h.users.ProfilesByID(c.Request.Context(), []string{answer.AuthorID})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnswerPayload(answer, known))
}

func (h *httpHandler) publishRating(questionID int64, kind string, targetID int64, rating int) {
	h.realtime.Publish(RealtimeMessage{
		QuestionID: questionID,
		EventType:  RealtimeEventRatingChanged,
		TargetKind: kind,
		TargetID:   targetID,
		Rating:     rating,
	})
}

// sidebar composes the popular tags and best members blocks shown beside
// every listing.
func (h *httpHandler) sidebar(c *gin.Context) (sidebarPayload, error) {
	ctx := c.Request.Context()
	tags, err := h.questions.PopularTags(ctx, h.popularTagsLimit)
	if err != nil {
		return sidebarPayload{}, err
	}
	members, err := h.users.BestMembers(ctx, h.bestMembersLimit)
	if err != nil {
		return sidebarPayload{}, err
	}
	return newSidebarPayload(tags, members), nil
}

func (h *httpHandler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": errInvalidIdentifier.Error(), "code": "request.invalid_identifier"})
		return 0, false
	}
	return id, true
}

func pageRequest(c *gin.Context) pagination.PageRequest {
	raw, present := c.GetQuery("page")
	return pagination.ParsePageNumber(raw, present)
}

func bindVote(c *gin.Context) (questions.VoteValue, bool) {
	var request voteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "request.malformed"})
		return 0, false
	}
	value, err := questions.NewVoteValue(request.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "votes.invalid_value"})
		return 0, false
	}
	return value, true
}

// respondError maps domain errors onto HTTP statuses. Persistence failures
// were logged by the service that produced them.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, questions.ErrQuestionNotFound):
		status, code = http.StatusNotFound, "questions.not_found"
	case errors.Is(err, questions.ErrAnswerNotFound):
		status, code = http.StatusNotFound, "answers.not_found"
	case errors.Is(err, questions.ErrTagNotFound):
		status, code = http.StatusNotFound, "tags.not_found"
	case errors.Is(err, questions.ErrNotQuestionAuthor):
		status, code = http.StatusForbidden, "answers.not_question_author"
	case errors.Is(err, questions.ErrTagNameTooLong):
		status, code = http.StatusBadRequest, "tags.name_too_long"
	case errors.Is(err, questions.ErrInvalidTitle):
		status, code = http.StatusBadRequest, "questions.invalid_title"
	case errors.Is(err, questions.ErrInvalidText):
		status, code = http.StatusBadRequest, "questions.invalid_text"
	case errors.Is(err, questions.ErrInvalidVoteValue):
		status, code = http.StatusBadRequest, "votes.invalid_value"
	case errors.Is(err, questions.ErrMissingAuthor):
		status, code = http.StatusUnauthorized, "session.unauthorized"
	default:
		var serviceErr *questions.ServiceError
		if errors.As(err, &serviceErr) {
			code = serviceErr.Code()
		} else {
			h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		}
		c.JSON(status, gin.H{"error": "internal_error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
