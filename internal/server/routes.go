package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keyward/keyward/api"
	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/metrics"
)

// API implements the HTTP handlers for the key lifecycle endpoints.
type API struct {
	server *Server
}

// GenerateRoutes constructs the http.Handler for the primary http server.
//
// The order of routes in this function is important! Gin saves a route along
// with all the middleware that will apply to the route when the
// Router.{GET,POST,etc} method is called.
func (s *Server) GenerateRoutes() *gin.Engine {
	a := &API{server: s}
	router := gin.New()
	router.NoRoute(notFoundHandler)

	router.Use(recoveryMiddleware())
	router.GET("/healthz", healthHandler)

	requestTimeout := s.options.API.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = time.Minute
	}

	router.Use(
		logging.Middleware(s.options.EnableLogSampling),
		TimeoutMiddleware(requestTimeout),
	)

	api := router.Group("/",
		metrics.Middleware(s.metricsRegistry),
		DatabaseMiddleware(s.db), // must be after TimeoutMiddleware to time out db queries.
		s.dependenciesMiddleware(),
	)

	authn := api.Group("/", AuthenticationMiddleware())

	authn.POST("/v1/api-keys", a.CreateAPIKey)
	authn.GET("/v1/api-keys", a.ListAPIKeys)
	authn.GET("/v1/api-keys/:id", a.GetAPIKey)
	authn.PUT("/v1/api-keys/:id", a.UpdateAPIKey)
	authn.DELETE("/v1/api-keys/:id", a.DeleteAPIKey)

	authn.GET("/v1/audit-events", a.ListAuditEvents)

	api.GET("/v1/providers", a.ListProviders)
	api.GET("/v1/version", a.Version)

	return router
}

func healthHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, &api.Error{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Code:    http.StatusNotFound,
		Message: "not found",
	})
}

func (a *API) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": internal.FullVersion()})
}

func (a *API) ListProviders(c *gin.Context) {
	kinds := a.server.registry.Kinds()
	sort.Strings(kinds)
	c.JSON(http.StatusOK, api.NewListResponse(kinds))
}
