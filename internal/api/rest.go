package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/clipforge/clipforge/internal/api/files"
	"github.com/clipforge/clipforge/internal/api/operations"
	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	Config struct {
		HostAddr        string `yaml:"host" env:"HOST_ADDR" env-default:"0.0.0.0:8080"`
		UploadSizeLimit string `yaml:"upload_size_limit" env:"UPLOAD_SIZE_LIMIT" env-default:"500M"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// dataStore is the union of the controller store requirements.
	dataStore interface {
		files.Store
		operations.Store
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router.
	// Its sole responsibility is to create the routes the service
	// exposes and to translate handler errors to the documented wire
	// shape.
	RestGateway struct {
		config               *Config
		ec                   *echo.Echo
		filesController      controller
		operationsController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all
// the routes defined by the controllers.
func NewRestGateway(
	config *Config,
	store dataStore,
	blobs files.Blobs,
	prober files.Prober,
	metaDirPath string,
	cleanup files.CleanupScheduler,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.HTTPErrorHandler = errorHandler

	gateway := &RestGateway{
		config:               config,
		ec:                   ec,
		filesController:      files.New(store, blobs, prober, metaDirPath, cleanup, config.UploadSizeLimit),
		operationsController: operations.New(store),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())

	root := ec.Group("")
	gateway.filesController.SetRoutes(root)
	gateway.operationsController.SetRoutes(root)

	return gateway
}

// errorHandler flattens every handler error to a single 'error'
// string with the appropriate status code.
func errorHandler(err error, ec echo.Context) {
	if ec.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		switch m := httpErr.Message.(type) {
		case string:
			message = m
		case error:
			message = m.Error()
		}
	}

	if jsonErr := ec.JSON(code, map[string]string{"error": message}); jsonErr != nil {
		log.Emit(logger.ERROR, "failed to write error response: %v\n", jsonErr)
	}
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Wait()

	// Parent context cancellation is a normal shutdown, not an error.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
