package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/richroberts-prog/air-demand/internal/digest"
	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/lifecycle"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/store"
)

const (
	defaultRoleLimit   = 100
	defaultChangeLimit = 200
	defaultRunLimit    = 20
	maxLimit           = 1000
	detailChanges      = 50
	detailSnapshots    = 10
)

func (s *Server) health(c fiber.Ctx) error {
	if _, err := s.store.ListRuns(c.Context(), 1); err != nil {
		s.logger.Error("health check failed", "error", err)
		return fail(c, fiber.StatusServiceUnavailable, "store unavailable")
	}
	return success(c, fiber.StatusOK, fiber.Map{"status": "up"})
}

func (s *Server) listRoles(c fiber.Ctx) error {
	q := model.RoleQuery{
		Tiers:        csv[model.Tier](c.Query("tier"), true),
		Statuses:     csv[model.LifecycleStatus](c.Query("status"), true),
		Trends:       csv[model.TrendLabel](c.Query("trend"), false),
		DisplayTiers: csv[model.DisplayTier](c.Query("display_tier"), false),
		Sort:         c.Query("sort"),
	}
	if !store.ValidSort(q.Sort) {
		return fail(c, fiber.StatusBadRequest, fmt.Sprintf("unknown sort %q", q.Sort))
	}
	for _, st := range q.Statuses {
		if _, err := lifecycle.ParseStatus(string(st)); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
	}
	switch strings.ToLower(c.Query("order", "desc")) {
	case "asc":
		q.Ascending = true
	case "desc":
	default:
		return fail(c, fiber.StatusBadRequest, "order must be asc or desc")
	}

	var err error
	if q.Limit, err = limit(c, defaultRoleLimit); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if q.SeenSince, err = since(c); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	roles, err := s.store.ListRoles(c.Context(), q)
	if err != nil {
		s.logger.Error("listing roles", "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	return success(c, fiber.StatusOK, toRoles(roles))
}

func (s *Server) getRole(c fiber.Ctx) error {
	ctx := c.Context()
	role, err := s.store.GetRole(ctx, c.Params("id"))
	if errors.Is(err, model.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "role not found")
	}
	if err != nil {
		s.logger.Error("getting role", "external_id", c.Params("id"), "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}

	changes, err := s.store.ListChanges(ctx, model.ChangeQuery{RoleID: role.ID, Limit: detailChanges})
	if err != nil {
		s.logger.Error("listing role changes", "external_id", role.ExternalID, "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	snaps, err := s.store.RecentSnapshots(ctx, role.ID, detailSnapshots)
	if err != nil {
		s.logger.Error("listing role snapshots", "external_id", role.ExternalID, "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}

	detail := roleDetailResponse{
		roleResponse: toRole(role),
		Changes:      toChanges(changes),
		Snapshots:    make([]snapshotResponse, 0, len(snaps)),
	}
	for _, sn := range snaps {
		detail.Snapshots = append(detail.Snapshots, snapshotResponse{CapturedAt: sn.CapturedAt, ContentHash: sn.ContentHash, Fields: sn.Fields})
	}
	return success(c, fiber.StatusOK, detail)
}

func (s *Server) listChanges(c fiber.Ctx) error {
	ctx := c.Context()
	q := model.ChangeQuery{Types: csv[model.ChangeType](c.Query("type"), true)}

	var err error
	if q.Limit, err = limit(c, defaultChangeLimit); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if q.Since, err = since(c); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if runID := c.Query("run_id"); runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if errors.Is(err, model.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "run not found")
		}
		if err != nil {
			s.logger.Error("getting run", "run_id", runID, "error", err)
			return fail(c, fiber.StatusInternalServerError, "")
		}
		q.RunID = run.ID
	}

	changes, err := s.store.ListChanges(ctx, q)
	if err != nil {
		s.logger.Error("listing changes", "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	return success(c, fiber.StatusOK, toChanges(changes))
}

func (s *Server) listRuns(c fiber.Ctx) error {
	n, err := limit(c, defaultRunLimit)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	runs, err := s.store.ListRuns(c.Context(), n)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRun(r))
	}
	return success(c, fiber.StatusOK, out)
}

func (s *Server) getRun(c fiber.Ctx) error {
	run, err := s.store.GetRun(c.Context(), c.Params("id"))
	if errors.Is(err, model.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error("getting run", "run_id", c.Params("id"), "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	return success(c, fiber.StatusOK, toRun(run))
}

// getDigest previews a digest without committing its mark. ?since= overrides
// the mark; ?mark= picks a named mark.
func (s *Server) getDigest(c fiber.Ctx) error {
	ctx := c.Context()
	from, err := since(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	var d model.Digest
	if !from.IsZero() {
		d, err = s.digests.Since(ctx, from)
	} else {
		d, err = s.digests.SinceMark(ctx, c.Query("mark", digest.DefaultMark))
	}
	if err != nil {
		s.logger.Error("building digest", "error", err)
		return fail(c, fiber.StatusInternalServerError, "")
	}
	return success(c, fiber.StatusOK, toDigest(d))
}

// triggerRun runs one ingestion cycle synchronously. The run outlives a
// disconnected client.
func (s *Server) triggerRun(c fiber.Ctx) error {
	ctx := engine.WithTrigger(context.WithoutCancel(c.Context()), "api")
	res, err := s.trigger.Poll(ctx)

	var httpErr *model.HTTPError
	switch {
	case err == nil:
		return success(c, fiber.StatusCreated, toRun(res.Run))
	case errors.Is(err, model.ErrRunInProgress):
		return fail(c, fiber.StatusConflict, "another ingestion run is in progress")
	case errors.Is(err, model.ErrEmptyBatch), errors.Is(err, model.ErrInvalidBatch), errors.As(err, &httpErr):
		s.logger.Warn("manual run rejected", "error", err)
		return fail(c, fiber.StatusBadGateway, err.Error())
	default:
		s.logger.Error("manual run failed", "run_id", res.Run.RunID, "error", err)
		if res.Run.RunID != "" {
			return c.Status(fiber.StatusInternalServerError).JSON(SemanticResponse{
				Status:  fiber.StatusInternalServerError,
				Message: err.Error(),
				Data:    toRun(res.Run),
			})
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
}

// csv splits a comma-separated query value. upper normalises enum casing.
func csv[T ~string](raw string, upper bool) []T {
	if raw == "" {
		return nil
	}
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if upper {
			part = strings.ToUpper(part)
		} else {
			part = strings.ToLower(part)
		}
		out = append(out, T(part))
	}
	return out
}

func limit(c fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

// since parses ?since= as RFC 3339 or a duration back from now (e.g. 24h).
func since(c fiber.Ctx) (time.Time, error) {
	raw := c.Query("since")
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return time.Now().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("since must be RFC 3339 or a duration like 24h")
}
