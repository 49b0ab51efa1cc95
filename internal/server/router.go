package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/questions"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/users"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	profileContextKey = "askme_profile"

	defaultPerPage           = 10
	defaultPopularTagsLimit  = 10
	defaultBestMembersLimit  = 5
	defaultHeartbeatInterval = 25 * time.Second
)

// uncompressedPaths skips gzip for event streams, which flush per message,
// and for the metrics endpoint, which negotiates its own encoding.
var uncompressedPaths = []string{`^/questions/[^/]+/events$`, `^/metrics$`}

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingQuestionsService = errors.New("questions service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
)

// SessionValidator authenticates the session cookie of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	SessionValidator  SessionValidator
	QuestionsService  *questions.Service
	UsersService      *users.Service
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	PerPage           int
	PopularTagsLimit  int
	BestMembersLimit  int
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine serving the forum API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.QuestionsService == nil {
		return nil, errMissingQuestionsService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	metrics := newHTTPMetrics(realtime)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(metrics.middleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs(uncompressedPaths)))

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		questions:         deps.QuestionsService,
		users:             deps.UsersService,
		realtime:          realtime,
		metrics:           metrics,
		logger:            logger,
		perPage:           positiveOr(deps.PerPage, defaultPerPage),
		popularTagsLimit:  positiveOr(deps.PopularTagsLimit, defaultPopularTagsLimit),
		bestMembersLimit:  positiveOr(deps.BestMembersLimit, defaultBestMembersLimit),
		heartbeatInterval: deps.HeartbeatInterval,
	}
	if handler.heartbeatInterval <= 0 {
		handler.heartbeatInterval = defaultHeartbeatInterval
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.handler()))
	router.GET("/questions", handler.handleListNewQuestions)
	router.GET("/questions/hot", handler.handleListHotQuestions)
	router.GET("/tags/:name/questions", handler.handleListTaggedQuestions)
	router.GET("/questions/:id", handler.handleGetQuestion)
	router.GET("/questions/:id/events", handler.handleQuestionEvents)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/questions", handler.handleCreateQuestion)
	protected.POST("/questions/:id/answers", handler.handleCreateAnswer)
	protected.POST("/questions/:id/votes", handler.handleVoteQuestion)
	protected.DELETE("/questions/:id/votes", handler.handleRetractQuestionVote)
	protected.POST("/answers/:id/votes", handler.handleVoteAnswer)
	protected.DELETE("/answers/:id/votes", handler.handleRetractAnswerVote)
	protected.POST("/answers/:id/correct", handler.handleMarkCorrectAnswer)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	questions         *questions.Service
	users             *users.Service
	realtime          *RealtimeDispatcher
	metrics           *httpMetrics
	logger            *zap.Logger
	perPage           int
	popularTagsLimit  int
	bestMembersLimit  int
	heartbeatInterval time.Duration
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
