package handler

import (
	"errors"
	"net/http"
	"strconv"

	"marathon-billing-engine/internal/dto"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/service"

	"github.com/labstack/echo/v4"
)

type MarathonHandler struct {
	progressionService service.ProgressionService
}

func NewMarathonHandler(progressionService service.ProgressionService) *MarathonHandler {
	return &MarathonHandler{
		progressionService: progressionService,
	}
}

func (h *MarathonHandler) Enroll(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.EnrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	enrollment, err := h.progressionService.Enroll(ctx, service.EnrollInput{
		UserID:     userID,
		MarathonID: c.Param("id"),
		TotalDays:  req.TotalDays,
		Free:       req.Free,
	})
	if errors.Is(err, model.ErrAlreadyEnrolled) {
		return echo.NewHTTPError(http.StatusConflict, "already enrolled in this marathon")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": string(enrollment.Status),
	})
}

func (h *MarathonHandler) GetProgress(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	progress, err := h.progressionService.GetProgress(ctx, userID, c.Param("id"))
	if errors.Is(err, model.ErrNotEnrolled) {
		return echo.NewHTTPError(http.StatusForbidden, "not enrolled in this marathon")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.ProgressResponse{
		Status:         string(progress.Status),
		EnrolledAt:     progress.EnrolledAt,
		TotalDays:      progress.TotalDays,
		UnlockedDays:   progress.UnlockedDays,
		CompletedDays:  progress.CompletedDays,
		CompletedCount: progress.CompletedCount,
		CompletedWeeks: progress.CompletedWeeks,
		ExpiresAt:      progress.ExpiresAt,
	})
}

func (h *MarathonHandler) CompleteDay(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CompleteDayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	err = h.progressionService.MarkDayComplete(ctx, userID, c.Param("id"), req.DayNumber)
	return completeResult(c, err)
}

func (h *MarathonHandler) CompleteExercise(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	day, err := dayParam(c)
	if err != nil {
		return err
	}

	err = h.progressionService.MarkExerciseComplete(ctx, userID, c.Param("id"), day, c.Param("exerciseID"))
	return completeResult(c, err)
}

func (h *MarathonHandler) ExerciseAccess(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	hasAccess, expiresAt, err := h.progressionService.ExerciseAccess(ctx, userID, c.Param("id"))
	if err != nil {
		return err
	}

	resp := dto.ExerciseAccessResponse{HasAccess: hasAccess}
	if hasAccess {
		resp.ExpiresAt = &expiresAt
	}
	return c.JSON(http.StatusOK, resp)
}

func completeResult(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrNotEnrolled):
		return echo.NewHTTPError(http.StatusForbidden, "not enrolled in this marathon")
	case errors.Is(err, model.ErrDayOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, "day number out of range")
	case errors.Is(err, model.ErrDayLocked):
		return echo.NewHTTPError(http.StatusForbidden, "day is not unlocked yet")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func dayParam(c echo.Context) (int, error) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil || day < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid day number")
	}
	return day, nil
}
