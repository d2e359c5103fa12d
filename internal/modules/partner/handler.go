package partner

import (
	"github.com/gin-gonic/gin"
	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/partners")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
}

// createDTO carries the secrets the Partner model never serializes.
type createDTO struct {
	Name                     string `json:"name"`
	ShortCode                string `json:"short_code"`
	EcommerceAPIURL          string `json:"ecommerce_api_url"`
	LMSURL                   string `json:"lms_url"`
	LMSCoursemodeAPIURL      string `json:"lms_coursemode_api_url"`
	OAuth2ProviderURL        string `json:"oauth2_provider_url"`
	OAuth2ClientID           string `json:"oauth2_client_id"`
	OAuth2ClientSecret       string `json:"oauth2_client_secret"`
	MarketingSiteURLRoot     string `json:"marketing_site_url_root"`
	MarketingSiteAPIUsername string `json:"marketing_site_api_username"`
	MarketingSiteAPIPassword string `json:"marketing_site_api_password"`
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, items)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, p)
}

func (h *Handler) create(c *gin.Context) {
	var dto createDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p := &models.Partner{
		Name:                     dto.Name,
		ShortCode:                dto.ShortCode,
		EcommerceAPIURL:          dto.EcommerceAPIURL,
		LMSURL:                   dto.LMSURL,
		LMSCoursemodeAPIURL:      dto.LMSCoursemodeAPIURL,
		OAuth2ProviderURL:        dto.OAuth2ProviderURL,
		OAuth2ClientID:           dto.OAuth2ClientID,
		OAuth2ClientSecret:       dto.OAuth2ClientSecret,
		MarketingSiteURLRoot:     dto.MarketingSiteURLRoot,
		MarketingSiteAPIUsername: dto.MarketingSiteAPIUsername,
		MarketingSiteAPIPassword: dto.MarketingSiteAPIPassword,
	}
	if err := h.svc.Create(c.Request.Context(), p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, p)
}
