package http

import (
	"closet_server/core/domain"
	"closet_server/core/service/job"
	syncsvc "closet_server/core/service/sync"
	"closet_server/pkg/logger"
	"closet_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler exposes sync job start, cancel, status and history.
type SyncHandler struct {
	syncs   *syncsvc.Service
	tracker *job.Tracker
}

func NewSyncHandler(syncs *syncsvc.Service, tracker *job.Tracker) *SyncHandler {
	return &SyncHandler{syncs: syncs, tracker: tracker}
}

func (h *SyncHandler) Register(app fiber.Router) {
	app.Post("/sync", h.Start)
	app.Post("/sync/:jobId/cancel", h.Cancel)
	app.Get("/sync/history", h.History)
	app.Get("/sync/:jobId", h.Status)
}

type startSyncRequest struct {
	Retailer   string `json:"retailer"`
	MaxResults int    `json:"maxResults"`
	OnlyUnread bool   `json:"onlyUnread"`
	DaysBack   int    `json:"daysBack"`
	MarkAsRead bool   `json:"markAsRead"`
}

// Start kicks off a background sync and returns the job for polling.
func (h *SyncHandler) Start(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	var req startSyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "invalid request body")
		}
	}

	started, err := h.syncs.StartSync(c.Context(), userID, domain.SyncOptions{
		Retailer:   req.Retailer,
		MaxResults: req.MaxResults,
		OnlyUnread: req.OnlyUnread,
		DaysBack:   req.DaysBack,
		MarkAsRead: req.MarkAsRead,
	})
	if err != nil {
		logger.WithError(err).Warn("[SyncHandler.Start] Sync start rejected")
		return AppErrorResponse(c, err)
	}

	return response.Accepted(c, started)
}

// Cancel requests cooperative cancellation.
func (h *SyncHandler) Cancel(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	jobID := c.Params("jobId")
	syncJob, err := h.tracker.Get(c.Context(), jobID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if syncJob.UserID != userID {
		return response.NotFound(c, "sync job not found")
	}

	if err := h.syncs.Cancel(c.Context(), jobID); err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, fiber.Map{"canceling": true})
}

// Status returns current job state.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	syncJob, err := h.tracker.Get(c.Context(), c.Params("jobId"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if syncJob.UserID != userID {
		return response.NotFound(c, "sync job not found")
	}
	return response.OK(c, syncJob)
}

// History lists the user's recent jobs, newest first.
func (h *SyncHandler) History(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	limit := response.Limit(c, 50, 50)
	jobs, err := h.tracker.History(c.Context(), userID.String(), limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, jobs)
}
