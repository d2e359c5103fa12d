package catalog

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/ecommerce"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"github.com/mx-space/catalog/internal/pkg/pagination"
	"github.com/mx-space/catalog/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	courses := rg.Group("/courses")
	courses.GET("", h.listCourses)
	courses.GET("/:id", h.getCourse)
	courses.POST("/:id/draft", h.ensureDraftCourse)
	courses.POST("/:id/official", h.promoteCourse)
	courses.POST("/:id/entitlements/missing", h.createMissingEntitlement)
	courses.PUT("/:id/url-slug", h.setURLSlug)

	runs := rg.Group("/course-runs")
	runs.GET("", h.listCourseRuns)
	runs.GET("/:id", h.getCourseRun)
	runs.POST("/:id/draft", h.ensureDraftCourseRun)
	runs.POST("/:id/official", h.promoteCourseRun)
	runs.POST("/:id/ecommerce", h.pushEcommerce)
	runs.POST("/:id/lms-tracks", h.pushLMSTracks)
}

// WriteError maps catalog and upstream errors onto response envelopes.
func WriteError(c *gin.Context, err error) {
	var apiErr *ecommerce.APIError
	var ecomStatus *ecommerce.StatusError
	var lmsStatus *lms.StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrURLSlugConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrUnsupportedEntity):
		response.UnprocessableEntity(c, err.Error())
	case errors.As(err, &apiErr), errors.As(err, &ecomStatus), errors.As(err, &lmsStatus):
		response.BadGateway(c, err)
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) scope(c *gin.Context) (Scope, bool) {
	scope, err := ParseScope(c.Query("scope"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return scope, false
	}
	return scope, true
}

func (h *Handler) listCourses(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	items, pag, err := h.svc.ListCourses(c.Request.Context(), scope, CourseFilter{
		PartnerID: c.Query("partner_id"),
		Key:       c.Query("key"),
	}, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) getCourse(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	course, err := h.svc.GetCourse(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if course == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, course)
}

func (h *Handler) loadCourse(c *gin.Context) *models.Course {
	course, err := h.svc.GetCourse(c.Request.Context(), ScopeEverything, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return nil
	}
	if course == nil {
		response.NotFound(c)
		return nil
	}
	return course
}

func (h *Handler) loadCourseRun(c *gin.Context) *models.CourseRun {
	run, err := h.svc.GetCourseRun(c.Request.Context(), ScopeEverything, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return nil
	}
	if run == nil {
		response.NotFound(c)
		return nil
	}
	return run
}

func (h *Handler) ensureDraftCourse(c *gin.Context) {
	course := h.loadCourse(c)
	if course == nil {
		return
	}
	draft, err := h.svc.EnsureDraftCourse(c.Request.Context(), course)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, draft)
}

func (h *Handler) promoteCourse(c *gin.Context) {
	course := h.loadCourse(c)
	if course == nil {
		return
	}
	official, err := h.svc.UpdateOrCreateOfficialCourse(c.Request.Context(), course)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, official)
}

func (h *Handler) createMissingEntitlement(c *gin.Context) {
	course := h.loadCourse(c)
	if course == nil {
		return
	}
	created, err := h.svc.CreateMissingEntitlement(c.Request.Context(), course)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, gin.H{"created": created})
}

type setURLSlugDTO struct {
	URLSlug string `json:"url_slug"`
}

func (h *Handler) setURLSlug(c *gin.Context) {
	var dto setURLSlugDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	course := h.loadCourse(c)
	if course == nil {
		return
	}
	active, err := h.svc.SetActiveURLSlug(c.Request.Context(), course, dto.URLSlug)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, gin.H{"url_slug": active})
}

func (h *Handler) listCourseRuns(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	items, pag, err := h.svc.ListCourseRuns(c.Request.Context(), scope, c.Query("course_id"), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) getCourseRun(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	run, err := h.svc.GetCourseRun(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if run == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, run)
}

func (h *Handler) ensureDraftCourseRun(c *gin.Context) {
	run := h.loadCourseRun(c)
	if run == nil {
		return
	}
	draft, err := h.svc.EnsureDraftCourseRun(c.Request.Context(), run)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, draft)
}

type promoteRunDTO struct {
	NotifyServices bool `json:"notify_services"`
}

func (h *Handler) promoteCourseRun(c *gin.Context) {
	var dto promoteRunDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	run := h.loadCourseRun(c)
	if run == nil {
		return
	}
	official, err := h.svc.UpdateOrCreateOfficialRun(c.Request.Context(), run, dto.NotifyServices)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, official)
}

func (h *Handler) pushEcommerce(c *gin.Context) {
	run := h.loadCourseRun(c)
	if run == nil {
		return
	}
	if run.Draft {
		response.UnprocessableEntity(c, "only official course runs are published to ecommerce")
		return
	}
	pushed, err := h.svc.PushToEcommerceForCourseRun(c.Request.Context(), run)
	if err != nil {
		WriteError(c, err)
		return
	}
	response.OK(c, gin.H{"pushed": pushed})
}

func (h *Handler) pushLMSTracks(c *gin.Context) {
	run := h.loadCourseRun(c)
	if run == nil {
		return
	}
	if err := h.svc.PushTracksToLMSForCourseRun(c.Request.Context(), run); err != nil {
		WriteError(c, err)
		return
	}
	response.NoContent(c)
}
