package publisher

import (
	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/modules/catalog"
	"github.com/mx-space/catalog/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/publisher")
	g.POST("/courses", h.createCourse)
	g.POST("/course-runs", h.createCourseRun)
	g.GET("/course-runs/:id", h.getCourseRun)
	g.POST("/course-runs/:id/publish", h.publish)
}

func (h *Handler) createCourse(c *gin.Context) {
	var pc models.PublisherCourse
	if err := c.ShouldBindJSON(&pc); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.CreateCourse(c.Request.Context(), &pc); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, pc)
}

func (h *Handler) createCourseRun(c *gin.Context) {
	var pr models.PublisherCourseRun
	if err := c.ShouldBindJSON(&pr); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.CreateCourseRun(c.Request.Context(), &pr); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, pr)
}

func (h *Handler) getCourseRun(c *gin.Context) {
	pr, err := h.svc.GetCourseRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		catalog.WriteError(c, err)
		return
	}
	response.OK(c, pr)
}

type publishDTO struct {
	CreateOfficial bool `json:"create_official"`
	FailOnURLSlug  bool `json:"fail_on_url_slug"`
}

func (h *Handler) publish(c *gin.Context) {
	var dto publishDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	run, err := h.svc.Publish(c.Request.Context(), c.Param("id"), Options{
		CreateOfficial: dto.CreateOfficial,
		FailOnURLSlug:  dto.FailOnURLSlug,
	})
	if err != nil {
		catalog.WriteError(c, err)
		return
	}
	response.OK(c, run)
}
