package uploads

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/multipart", authMiddleware, func(c *fiber.Ctx) error {
		tripID := c.FormValue("trip_id")
		segmentID := c.FormValue("segment_id")
		filename := c.FormValue("filename")
		if tripID == "" || segmentID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "trip_id and segment_id required")
		}
		header, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file part required")
		}
		if filename == "" {
			filename = header.Filename
		}
		file, err := header.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer file.Close()

		result, err := svc.StoreMultipart(c.Context(), userID(c), tripID, segmentID, filename, file)
		if err != nil {
			return toHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.TripID == "" || req.SegmentID == "" || req.UploadLength <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "trip_id, segment_id and upload_length required")
		}
		session, err := svc.CreateSession(c.Context(), userID(c), req)
		if err != nil {
			return toHTTP(err)
		}
		c.Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Head("/:id", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.GetSession(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return toHTTP(err)
		}
		c.Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
		c.Set("Upload-Length", strconv.FormatInt(session.UploadLength, 10))
		return c.SendStatus(fiber.StatusOK)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		offset, err := strconv.ParseInt(c.Get("Upload-Offset"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Upload-Offset header required")
		}
		session, err := svc.AppendChunk(c.Context(), userID(c), c.Params("id"), offset, bytes.NewReader(c.Body()))
		if err != nil {
			return toHTTP(err)
		}
		c.Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func toHTTP(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "upload not found")
	case errors.Is(err, ErrOffsetMismatch):
		return fiber.NewError(fiber.StatusConflict, "Offset mismatch")
	case errors.Is(err, ErrChecksumMismatch):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Checksum mismatch")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
