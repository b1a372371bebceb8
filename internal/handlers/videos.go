package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tuckbot-api/internal/logging"
	"tuckbot-api/internal/models"
	"tuckbot-api/internal/repository"

	"github.com/gin-gonic/gin"
)

// --- Structs for Request Binding ---

type CreateVideoRequest struct {
	RedditPostID    string `json:"redditPostId" form:"redditPostId" binding:"required"`
	RedditPostTitle string `json:"redditPostTitle" form:"redditPostTitle" binding:"required"`
	MirrorURL       string `json:"mirrorUrl" form:"mirrorUrl" binding:"required"`
}

// --- Response payloads ---

type videoResponse struct {
	RedditPostID    string `json:"redditPostId,omitempty"`
	RedditPostTitle string `json:"redditPostTitle,omitempty"`
	MirrorURL       string `json:"mirrorUrl,omitempty"`
}

type staleVideoResponse struct {
	RedditPostID string     `json:"redditPostId"`
	LastViewedAt *time.Time `json:"lastViewedAt"`
	LastPrunedAt *time.Time `json:"lastPrunedAt"`
}

type idResponse struct {
	RedditPostID string `json:"redditPostId"`
}

type failureResponse struct {
	RedditPostID string `json:"redditPostId"`
	Message      string `json:"message"`
}

func toVideoResponse(v *models.Video) videoResponse {
	return videoResponse{
		RedditPostID:    v.RedditPostID,
		RedditPostTitle: v.RedditPostTitle,
		MirrorURL:       v.MirrorURL,
	}
}

// VideoHandler serves the video record endpoints.
type VideoHandler struct {
	repo   repository.VideoRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewVideoHandler(repo repository.VideoRepository, logger *slog.Logger, now func() time.Time) *VideoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &VideoHandler{repo: repo, logger: logger, now: now}
}

func (h *VideoHandler) log(c *gin.Context) *slog.Logger {
	return logging.FromContext(c.Request.Context(), h.logger)
}

func redditPostIDParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("redditPostId"))
}

// --- Handler Functions ---

func (h *VideoHandler) PruneVideo(c *gin.Context) {
	redditPostID := redditPostIDParam(c)
	ctx := c.Request.Context()

	video, err := h.repo.FindByID(ctx, redditPostID)
	if errors.Is(err, repository.ErrVideoNotFound) {
		respond(c, Response{
			Status:  http.StatusNotFound,
			Message: "Video not found in database",
			Data:    idResponse{RedditPostID: redditPostID},
		})
		return
	}
	if err == nil {
		err = h.repo.Prune(ctx, video)
	}
	if err != nil {
		h.log(c).Error("unable to prune video", "reddit_post_id", redditPostID, "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Unable to prune video",
			Data:    failureResponse{RedditPostID: redditPostID, Message: err.Error()},
		})
		return
	}

	respond(c, Response{Data: idResponse{RedditPostID: redditPostID}})
}

func (h *VideoHandler) GetStaleVideos(c *gin.Context) {
	videos, err := h.repo.FindStale(c.Request.Context(), h.now())
	if err != nil {
		h.log(c).Error("unable to list stale videos", "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    gin.H{"message": err.Error()},
		})
		return
	}

	stale := make([]staleVideoResponse, 0, len(videos))
	for _, v := range videos {
		stale = append(stale, staleVideoResponse{
			RedditPostID: v.RedditPostID,
			LastViewedAt: v.LastViewedAt,
			LastPrunedAt: v.LastPrunedAt,
		})
	}
	respond(c, Response{Data: gin.H{"staleVideos": stale}})
}

func (h *VideoHandler) CreateVideo(c *gin.Context) {
	var req CreateVideoRequest
	if err := c.ShouldBind(&req); err != nil {
		respond(c, Response{
			Status:  http.StatusUnprocessableEntity,
			Message: "Data missing from request",
			Data: videoResponse{
				RedditPostID:    req.RedditPostID,
				RedditPostTitle: req.RedditPostTitle,
				MirrorURL:       req.MirrorURL,
			},
		})
		return
	}

	ctx := c.Request.Context()
	existsResponse := Response{
		Status:  http.StatusSeeOther,
		Message: "Reddit post already exists in database",
		Data:    idResponse{RedditPostID: req.RedditPostID},
	}

	_, err := h.repo.FindByID(ctx, req.RedditPostID)
	if err == nil {
		respond(c, existsResponse)
		return
	}
	if !errors.Is(err, repository.ErrVideoNotFound) {
		h.log(c).Error("unable to look up video", "reddit_post_id", req.RedditPostID, "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    failureResponse{RedditPostID: req.RedditPostID, Message: err.Error()},
		})
		return
	}

	video := &models.Video{
		RedditPostID:    req.RedditPostID,
		RedditPostTitle: req.RedditPostTitle,
		MirrorURL:       req.MirrorURL,
	}
	if err := h.repo.Create(ctx, video); err != nil {
		// Lost a race with a concurrent create of the same id.
		if errors.Is(err, repository.ErrDuplicateVideo) {
			respond(c, existsResponse)
			return
		}
		h.log(c).Error("unable to create video", "reddit_post_id", req.RedditPostID, "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create mirror in database",
			Data:    failureResponse{RedditPostID: req.RedditPostID, Message: err.Error()},
		})
		return
	}

	h.log(c).Info("created video", "reddit_post_id", video.RedditPostID)
	respond(c, Response{
		Status:  http.StatusCreated,
		Message: "Successfully created mirror in database",
		Data:    toVideoResponse(video),
	})
}

func (h *VideoHandler) GetAllVideos(c *gin.Context) {
	videos, err := h.repo.FindAll(c.Request.Context(), repository.OrderCreatedDesc)
	if err != nil {
		h.log(c).Error("unable to list videos", "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    gin.H{"message": err.Error()},
		})
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}

	respond(c, Response{Data: gin.H{
		"count":  len(videos),
		"videos": videos,
	}})
}

func (h *VideoHandler) GetVideo(c *gin.Context) {
	redditPostID := redditPostIDParam(c)
	if redditPostID == "" {
		respond(c, Response{
			Status:  http.StatusUnprocessableEntity,
			Message: "redditPostId not provided",
		})
		return
	}

	video, err := h.repo.FindByID(c.Request.Context(), redditPostID)
	if err != nil {
		h.respondLookupError(c, redditPostID, err)
		return
	}

	respond(c, Response{Data: toVideoResponse(video)})
}

func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	redditPostID := redditPostIDParam(c)
	if redditPostID == "" {
		respond(c, Response{
			Status:  http.StatusUnprocessableEntity,
			Message: "redditPostId not provided",
		})
		return
	}

	ctx := c.Request.Context()
	video, err := h.repo.FindByID(ctx, redditPostID)
	if err == nil {
		err = h.repo.Delete(ctx, video)
	}
	if errors.Is(err, repository.ErrVideoNotFound) {
		h.respondLookupError(c, redditPostID, err)
		return
	}
	if err != nil {
		h.log(c).Error("unable to delete video", "reddit_post_id", redditPostID, "error", err)
		respond(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Internal error while processing deletion",
			Data:    failureResponse{RedditPostID: redditPostID, Message: err.Error()},
		})
		return
	}

	h.log(c).Info("deleted video", "reddit_post_id", redditPostID)
	respond(c, Response{Data: toVideoResponse(video)})
}

func (h *VideoHandler) respondLookupError(c *gin.Context, redditPostID string, err error) {
	if errors.Is(err, repository.ErrVideoNotFound) {
		respond(c, Response{
			Status:  http.StatusNotFound,
			Message: "Video not found in database",
			Data:    idResponse{RedditPostID: redditPostID},
		})
		return
	}
	h.log(c).Error("unable to look up video", "reddit_post_id", redditPostID, "error", err)
	respond(c, Response{
		Status:  http.StatusInternalServerError,
		Message: "Database error",
		Data:    failureResponse{RedditPostID: redditPostID, Message: err.Error()},
	})
}
