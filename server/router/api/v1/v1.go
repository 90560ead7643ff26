// Package v1 exposes the query pipeline over a thin JSON API. Caller
// identity comes from the X-User-ID header set by the fronting gateway;
// authenticating that gateway is outside this service.
package v1

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/prodtalk/prodtalk/internal/profile"
	"github.com/prodtalk/prodtalk/server/queryengine"
	"github.com/prodtalk/prodtalk/store"
)

const userIDHeader = "X-User-ID"

// QueryEngine is the per-turn pipeline surface the router needs.
// *queryengine.Engine satisfies it.
type QueryEngine interface {
	ProcessTurn(ctx context.Context, userID int32, threadUID, message string) (*queryengine.TurnResponse, error)
}

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Engine  QueryEngine
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, engine QueryEngine) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Engine:  engine,
	}
}

// Register mounts the v1 routes on the echo server.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	apiGroup := echoServer.Group("/api/v1", middleware.CORS())
	apiGroup.POST("/query", s.CreateQuery)
	apiGroup.GET("/query/threads", s.ListQueryThreads)
	apiGroup.GET("/query/threads/:uid/turns", s.ListQueryThreadTurns)
	apiGroup.DELETE("/query/threads/:uid", s.DeleteQueryThread)
}

func callerID(c echo.Context) (int32, error) {
	raw := c.Request().Header.Get(userIDHeader)
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "missing X-User-ID header")
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid X-User-ID header")
	}
	return int32(id), nil
}
