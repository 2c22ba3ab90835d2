package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/decred/slog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
	"golang.org/x/time/rate"
)

const bodyLimit = "64K"

type EchoService struct {
	echo *echo.Echo
	port int
	log  slog.Logger
}

func NewEchoService(i do.Injector) (*EchoService, error) {
	port := do.MustInvokeNamed[int](i, "port")
	rateLimit := do.MustInvokeNamed[int](i, "rate-limit")
	log := do.MustInvoke[*LogService](i).Logger("HTTP")

	return NewEcho(port, rateLimit, log), nil
}

// NewEcho builds the server with request ids, request logging to log and,
// when rateLimit is positive, a per-client limit of rateLimit requests per
// minute. /health is never limited.
func NewEcho(port, rateLimit int, log slog.Logger) *EchoService {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogRequestID: true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Status >= http.StatusInternalServerError {
				log.Errorf("%s %s %s %d %v (%s) %v", v.RequestID, v.RemoteIP, v.Method, v.Status, v.URIPath, v.Latency, v.Error)
			} else {
				log.Debugf("%s %s %s %d %v (%s)", v.RequestID, v.RemoteIP, v.Method, v.Status, v.URIPath, v.Latency)
			}

			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))

	if rateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(float64(rateLimit) / 60.0),
				Burst: rateLimit,
			}),
			DenyHandler: func(_ echo.Context, identifier string, _ error) error {
				log.Warnf("Rate limited %s", identifier)

				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
					"error":   "RateLimited",
					"message": fmt.Sprintf("more than %d requests per minute", rateLimit),
				})
			},
		}))
	}

	return &EchoService{
		echo: e,
		port: port,
		log:  log,
	}
}

func (s *EchoService) Register(c func(e *echo.Echo)) {
	c(s.echo)
}

func (s *EchoService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *EchoService) Start() error {
	s.log.Infof("Listening on :%d", s.port)

	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *EchoService) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}

	return nil
}
