// Package api exposes the servo bus over HTTP: presence checks, register
// reads and writes, broadcast fan-out, telemetry history and a websocket
// stream.
package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/dynaflow/dynaflow/internal/api/middleware"
	"github.com/dynaflow/dynaflow/internal/config"
	"github.com/dynaflow/dynaflow/internal/hal"
	"github.com/dynaflow/dynaflow/internal/metrics"
	"github.com/dynaflow/dynaflow/internal/monitor"
	"github.com/dynaflow/dynaflow/internal/storage"
	"github.com/dynaflow/dynaflow/internal/websocket"
	protocol "github.com/dynaflow/dynaflow/pkg/protocol/v2"
)

// Handler carries the API dependencies.
type Handler struct {
	bus     *hal.Bus
	store   storage.Storage
	monitor *monitor.Monitor
	hub     *websocket.Hub
	stats   *metrics.Metrics
	auth    config.AuthConfig
}

// NewHandler assembles the API handler. store and monitor may be nil;
// the history and servo-list endpoints then report empty results.
func NewHandler(bus *hal.Bus, store storage.Storage, mon *monitor.Monitor,
	hub *websocket.Hub, stats *metrics.Metrics, auth config.AuthConfig) *Handler {
	return &Handler{bus: bus, store: store, monitor: mon, hub: hub, stats: stats, auth: auth}
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid login payload")
	}

	if req.Username != h.auth.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.auth.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid credentials",
		})
	}

	token, err := middleware.GenerateToken(middleware.JWTConfig{SecretKey: h.auth.SecretKey}, req.Username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue token",
		})
	}

	return c.JSON(fiber.Map{"token": token})
}

// --- Bus operations ---

func (h *Handler) ping(c *fiber.Ctx) error {
	id, err := servoID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	present, err := h.bus.Ping(id)
	if err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "present": present})
}

func (h *Handler) scan(c *fiber.Ctx) error {
	from := c.QueryInt("from", 0)
	to := c.QueryInt("to", 253)
	if from < 0 || to > 253 || from >= to {
		return badRequest(c, "scan range must satisfy 0 <= from < to <= 253")
	}

	found, err := h.bus.Scan(uint8(from), uint8(to))
	if err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"from": from, "to": to, "found": found})
}

func (h *Handler) readRegister(c *fiber.Ctx) error {
	id, err := servoID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	name := c.Params("name")

	value, err := h.bus.ReadRegister(id, name)
	if err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "register": name, "value": value})
}

type writeRequest struct {
	Value uint16 `json:"value"`
}

func (h *Handler) writeRegister(c *fiber.Ctx) error {
	id, err := servoID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	name := c.Params("name")

	var req writeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid write payload")
	}

	if err := h.bus.WriteRegister(id, name, req.Value); err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "register": name, "value": req.Value})
}

type syncReadRequest struct {
	IDs      []uint8 `json:"ids"`
	Register string  `json:"register"`
}

func (h *Handler) syncRead(c *fiber.Ctx) error {
	var req syncReadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid sync-read payload")
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "no servo ids given")
	}

	readings, err := h.bus.SyncRead(req.IDs, req.Register)
	if err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{
		"register": req.Register,
		"readings": readings,
		"missing":  len(req.IDs) - len(readings),
	})
}

type syncWriteRequest struct {
	Register    string `json:"register"`
	Assignments []struct {
		ID    uint8  `json:"id"`
		Value uint16 `json:"value"`
	} `json:"assignments"`
}

func (h *Handler) syncWrite(c *fiber.Ctx) error {
	var req syncWriteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid sync-write payload")
	}
	if len(req.Assignments) == 0 {
		return badRequest(c, "no assignments given")
	}

	assignments := make([]protocol.SyncAssignment, len(req.Assignments))
	for i, a := range req.Assignments {
		assignments[i] = protocol.SyncAssignment{ID: a.ID, Value: a.Value}
	}

	if err := h.bus.SyncWrite(req.Register, assignments); err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"register": req.Register, "written": len(assignments)})
}

func (h *Handler) factoryReset(c *fiber.Ctx) error {
	id, err := servoID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.bus.FactoryReset(id); err != nil {
		return busError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "reset": true})
}

// --- Catalog and history ---

func (h *Handler) listServos(c *fiber.Ctx) error {
	var known []uint8
	if h.monitor != nil {
		known = h.monitor.Known()
	}
	return c.JSON(fiber.Map{"servos": known})
}

func (h *Handler) listRegisters(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"registers": h.bus.Catalog().Names()})
}

func (h *Handler) listSamples(c *fiber.Ctx) error {
	id, err := servoID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if h.store == nil {
		return c.JSON(fiber.Map{"samples": []storage.Sample{}})
	}

	limit := c.QueryInt("limit", 100)
	samples, err := h.store.ListSamples(id, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"samples": samples})
}

func (h *Handler) listScans(c *fiber.Ctx) error {
	if h.store == nil {
		return c.JSON(fiber.Map{"scans": []storage.Scan{}})
	}

	limit := c.QueryInt("limit", 20)
	scans, err := h.store.ListScans(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"scans": scans})
}

// --- Helpers ---

func servoID(c *fiber.Ctx) (uint8, error) {
	raw, err := strconv.ParseUint(c.Params("id"), 10, 8)
	if err != nil {
		return 0, errors.New("servo id must be 0-253")
	}
	if raw > 253 {
		return 0, errors.New("servo id must be 0-253")
	}
	return uint8(raw), nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// busError maps driver failures onto HTTP statuses: absent or silent
// hardware is a gateway problem, a bad request is the caller's.
func busError(c *fiber.Ctx, err error) error {
	var statusErr protocol.StatusError

	switch {
	case errors.Is(err, hal.ErrUnknownRegister):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, protocol.ErrUnsupportedRegister):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, protocol.ErrTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &statusErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":      statusErr.Error(),
			"error_code": statusErr.Code(),
		})
	case errors.Is(err, protocol.ErrParsing), errors.Is(err, protocol.ErrInvalidChecksum):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
