package marketing

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/pkg/pagination"
	"github.com/mx-space/catalog/internal/pkg/response"
	"github.com/mx-space/catalog/internal/pkg/taskqueue"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/marketing/tasks")
	g.GET("", h.list)
	g.POST("/drain", h.drain)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
	g.DELETE("/:id", h.delete)
}

func writeTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, taskqueue.ErrNotPending):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	tasks, total, err := h.svc.Tasks(c.Request.Context(), taskqueue.Status(c.Query("status")), q.Page, q.Size)
	if err != nil {
		writeTaskError(c, err)
		return
	}
	response.Paged(c, tasks, pagination.Meta(q, total))
}

func (h *Handler) get(c *gin.Context) {
	task, err := h.svc.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeTaskError(c, err)
		return
	}
	response.OK(c, task)
}

func (h *Handler) cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeTaskError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeTaskError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) drain(c *gin.Context) {
	n, err := h.svc.Drain(c.Request.Context())
	if err != nil {
		writeTaskError(c, err)
		return
	}
	response.OK(c, gin.H{"published": n})
}
