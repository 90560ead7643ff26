package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/prodtalk/prodtalk/store"
)

type CreateQueryRequest struct {
	ThreadUID string `json:"thread_uid"`
	Message   string `json:"message"`
}

type QueryThreadResponse struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

type QueryTurnResponse struct {
	ID             int64  `json:"id"`
	Role           string `json:"role"`
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text,omitempty"`
	GeneratedSQL   string `json:"generated_sql,omitempty"`
	ResultSummary  string `json:"result_summary,omitempty"`
	CreatedTs      int64  `json:"created_ts"`
}

// CreateQuery processes one user message, creating a new thread when
// thread_uid is empty.
func (s *APIV1Service) CreateQuery(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	request := &CreateQueryRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	if request.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	response, err := s.Engine.ProcessTurn(c.Request().Context(), userID, request.ThreadUID, request.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process query").SetInternal(err)
	}
	return c.JSON(http.StatusOK, response)
}

// ListQueryThreads returns the caller's active threads, newest first.
func (s *APIV1Service) ListQueryThreads(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	status := store.Normal
	threads, err := s.Store.ListQueryThreads(c.Request().Context(), &store.FindQueryThread{
		CreatorID: &userID,
		RowStatus: &status,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list threads").SetInternal(err)
	}

	response := make([]*QueryThreadResponse, 0, len(threads))
	for _, thread := range threads {
		response = append(response, &QueryThreadResponse{
			UID:       thread.UID,
			Title:     thread.Title,
			CreatedTs: thread.CreatedTs,
			UpdatedTs: thread.UpdatedTs,
		})
	}
	return c.JSON(http.StatusOK, response)
}

// ListQueryThreadTurns returns the turns of one thread in chronological
// order. Soft-deleted threads are not visible.
func (s *APIV1Service) ListQueryThreadTurns(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	thread, err := s.findOwnedThread(c, userID)
	if err != nil {
		return err
	}

	turns, err := s.Store.ListQueryTurns(c.Request().Context(), &store.FindQueryTurn{ThreadID: &thread.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list turns").SetInternal(err)
	}

	response := make([]*QueryTurnResponse, 0, len(turns))
	for _, turn := range turns {
		response = append(response, &QueryTurnResponse{
			ID:             turn.ID,
			Role:           string(turn.Role),
			RawText:        turn.RawText,
			NormalizedText: turn.NormalizedText,
			GeneratedSQL:   turn.GeneratedSQL,
			ResultSummary:  turn.ResultSummary,
			CreatedTs:      turn.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, response)
}

// DeleteQueryThread soft-deletes a thread; its turns stay in place and
// disappear with it.
func (s *APIV1Service) DeleteQueryThread(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	thread, err := s.findOwnedThread(c, userID)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteQueryThread(c.Request().Context(), &store.DeleteQueryThread{ID: thread.ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete thread").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) findOwnedThread(c echo.Context, userID int32) (*store.QueryThread, error) {
	uid := c.Param("uid")
	status := store.Normal
	thread, err := s.Store.GetQueryThread(c.Request().Context(), &store.FindQueryThread{
		UID:       &uid,
		CreatorID: &userID,
		RowStatus: &status,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to find thread").SetInternal(err)
	}
	if thread == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return thread, nil
}
