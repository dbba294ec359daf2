package devices

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/register", authMiddleware, func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil || req.Platform == "" || req.Model == "" {
			return fiber.NewError(fiber.StatusBadRequest, "platform and model required")
		}
		userID, _ := c.Locals("user_id").(string)
		device, err := svc.Register(c.Context(), userID, req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(device)
	})
}
