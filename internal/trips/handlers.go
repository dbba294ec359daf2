package trips

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateTripRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DeviceID == "" || req.StartTimeUTC.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "device_id and start_time_utc required")
		}
		trip, err := svc.CreateTrip(c.Context(), userID(c), req)
		if err != nil {
			return toHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		trips, err := svc.ListTrips(c.Context(), userID(c))
		if err != nil {
			return toHTTP(err)
		}
		return c.JSON(ListTripsResponse{Trips: trips})
	})

	r.Post("/:id/segments", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateSegmentRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		seg, err := svc.CreateSegment(c.Context(), userID(c), c.Params("id"), req)
		if err != nil {
			return toHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(seg)
	})

	r.Patch("/:id/segments/:sid", authMiddleware, func(c *fiber.Ctx) error {
		var req PatchSegmentRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		seg, err := svc.PatchSegment(c.Context(), userID(c), c.Params("id"), c.Params("sid"), req)
		if err != nil {
			return toHTTP(err)
		}
		return c.JSON(seg)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var req FinalizeTripRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trip, err := svc.FinalizeTrip(c.Context(), userID(c), c.Params("id"), req)
		if err != nil {
			return toHTTP(err)
		}
		return c.JSON(trip)
	})
}

// RegisterSegmentRoutes mounts the segment-scoped endpoints that do not live
// under a trip path.
func RegisterSegmentRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:id/metadata", authMiddleware, func(c *fiber.Ctx) error {
		var req MetadataRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Type == "" {
			return fiber.NewError(fiber.StatusBadRequest, "type required")
		}
		meta, err := svc.SaveMetadata(c.Context(), userID(c), c.Params("id"), req)
		if err != nil {
			return toHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(meta)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func toHTTP(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "trip not found")
	case errors.Is(err, ErrSegmentsIncomplete):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
