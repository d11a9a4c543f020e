package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/hyperreach/cadence/pkg/assignment"
	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/monitor"
	"github.com/hyperreach/cadence/pkg/scheduler"
	"github.com/hyperreach/cadence/pkg/store"
)

type APIHandlers struct {
	store     store.Store
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	assigner  *assignment.Assigner
	validator *validator.Validate
}

func NewAPIHandlers(
	st store.Store,
	sched *scheduler.Scheduler,
	mon *monitor.Monitor,
	assigner *assignment.Assigner,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     st,
		scheduler: sched,
		monitor:   mon,
		assigner:  assigner,
		validator: validate,
	}
}

func (h *APIHandlers) ScheduleExecution(c fiber.Ctx) error {
	var req ScheduleExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	scheduledFor := time.Now().UTC()
	if req.ScheduledFor != nil {
		scheduledFor = *req.ScheduledFor
	}

	id, err := h.scheduler.ScheduleOne(c.Context(), req.CampaignID, req.LeadID, req.TemplateID, models.Channel(req.Channel), scheduledFor)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"execution_id": id})
}

func (h *APIHandlers) ScheduleSequence(c fiber.Ctx) error {
	var req ScheduleSequenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ids, err := h.scheduler.ScheduleSequence(c.Context(), req.CampaignID, req.LeadID, req.TemplateIDs, models.Channel(req.Channel))
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"execution_ids": ids})
}

func (h *APIHandlers) Enroll(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.assigner.Enroll(c.Context(), req.CampaignID, req.LeadIDs)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) CreateRecurrence(c fiber.Ctx) error {
	var req CreateRecurrenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	recurrence, err := h.assigner.CreateRecurrence(c.Context(), req.CampaignID, req.LeadIDs, req.CronExpression)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(recurrence)
}

func (h *APIHandlers) DeleteRecurrence(c fiber.Ctx) error {
	ok, err := h.assigner.DeleteRecurrence(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if !ok {
		return notFound(c, "Recurrence not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.store.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		if store.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(execution)
}

// CancelExecution cancels one scheduled execution. Executing, completed and
// terminally failed records cannot be cancelled.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")

	ok, err := h.scheduler.CancelExecution(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if !ok {
		if _, err := h.store.ExecutionByID(c.Context(), id); store.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return conflict(c, "Only scheduled executions can be cancelled")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) BulkCancel(c fiber.Ctx) error {
	var req BulkCancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.CampaignID == "" && req.LeadID == "" {
		return badRequest(c, "campaign_id or lead_id is required")
	}

	cancelled, err := h.scheduler.CancelExecutions(c.Context(), req.CampaignID, req.LeadID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"cancelled": cancelled})
}

func (h *APIHandlers) Stats(c fiber.Ctx) error {
	stats, err := h.monitor.Stats(c.Context(), c.Query("campaign_id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	health, err := h.monitor.Health(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(health)
}

func (h *APIHandlers) Report(c fiber.Ctx) error {
	report, err := h.monitor.Report(c.Context(), c.Query("campaign_id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(report)
}

// ForceProcess runs one scheduled execution outside the tick cycle.
func (h *APIHandlers) ForceProcess(c fiber.Ctx) error {
	id := c.Params("id")

	ok, err := h.monitor.ForceProcess(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if !ok {
		if _, err := h.store.ExecutionByID(c.Context(), id); store.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return conflict(c, "Only scheduled executions can be processed")
	}

	execution, err := h.store.ExecutionByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) StartMonitor(c fiber.Ctx) error {
	h.monitor.Start(c.Context())

	return c.JSON(fiber.Map{"running": true})
}

func (h *APIHandlers) StopMonitor(c fiber.Ctx) error {
	h.monitor.Stop(c.Context())

	return c.JSON(fiber.Map{"running": false})
}
