package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/observability"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

// FloodGuard rejects request bursts from a single address.
type FloodGuard interface {
	Consume(ctx context.Context, address string) error
}

// MiddlewareConfig bundles dependencies of the global middleware chain.
type MiddlewareConfig struct {
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Flood          FloodGuard
	Timeout        time.Duration
	AllowedOrigins []string
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, cfg MiddlewareConfig) {
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(helmet.New())
	app.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
	app.Use(errorHandlingMiddleware(cfg.Logger, cfg.Metrics))
	app.Use(observability.RequestLogger(cfg.Logger, cfg.Metrics))
	if cfg.Flood != nil {
		app.Use(floodMiddleware(cfg.Flood))
	}
}

func corsConfig(origins []string) cors.Config {
	joined := strings.Join(origins, ",")
	// credentials cannot be combined with a wildcard origin
	wildcard := joined == "" || strings.Contains(joined, "*")
	if joined == "" {
		joined = "*"
	}
	return cors.Config{
		AllowOrigins:     joined,
		AllowCredentials: !wildcard,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func floodMiddleware(guard FloodGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := guard.Consume(c.UserContext(), c.IP()); err != nil {
			return err
		}
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				if metrics != nil {
					metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code())
				}
				body := fiber.Map{
					"type":     domainErr.Type,
					"code":     domainErr.Code(),
					"message":  domainErr.Message,
					"instance": c.Path(),
				}
				if domainErr.RetryAfter > 0 {
					body["retryAfter"] = domainErr.RetryAfter
					c.Set(fiber.HeaderRetryAfter, strconv.Itoa(domainErr.RetryAfter))
				}
				if len(domainErr.Details) > 0 {
					body["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed",
						zap.String("type", domainErr.Type),
						zap.String("instance", c.Path()),
						zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				err = c.JSON(fiber.Map{"error": body})
			}
		}()
		return c.Next()
	}
}

// toDomainError also maps errors raised by fiber itself, such as unknown
// routes or oversized bodies.
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := apperrors.KindValidation
		switch {
		case fe.Code == fiber.StatusNotFound:
			kind = apperrors.KindNotFound
		case fe.Code >= fiber.StatusInternalServerError:
			kind = apperrors.KindInfrastructure
		}
		return apperrors.NewDomainError(kind, "/errors/app/http/"+strconv.Itoa(fe.Code), fe.Message, err).WithStatus(fe.Code)
	}
	return apperrors.ToDomainError(err)
}
