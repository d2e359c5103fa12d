package partner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/ecommerce"
	"github.com/mx-space/catalog/internal/pkg/lms"
	"github.com/mx-space/catalog/internal/pkg/marketing"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{
		db:      db,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
		clients: map[string]*http.Client{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("PartnerService")
		}
	}
}

// WithTimeout sets the timeout of every outbound partner API request.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func (s *Service) List(ctx context.Context) ([]models.Partner, error) {
	var items []models.Partner
	return items, s.db.WithContext(ctx).Order("short_code ASC").Find(&items).Error
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Partner, error) {
	var p models.Partner
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) GetByShortCode(ctx context.Context, code string) (*models.Partner, error) {
	var p models.Partner
	if err := s.db.WithContext(ctx).First(&p, "short_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) Create(ctx context.Context, p *models.Partner) error {
	p.ShortCode = strings.TrimSpace(p.ShortCode)
	if p.ShortCode == "" {
		return fmt.Errorf("short_code is required")
	}
	return s.db.WithContext(ctx).Create(p).Error
}

// APIClient returns an HTTP client authenticated with the partner's OAuth2 client credentials,
// or nil when the partner has none configured. Clients are cached so tokens are reused.
func (s *Service) APIClient(p *models.Partner) *http.Client {
	if p == nil || !p.HasOAuthCredentials() {
		return nil
	}
	key := strings.Join([]string{p.ID, p.OAuth2ProviderURL, p.OAuth2ClientID, p.OAuth2ClientSecret}, "|")

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return c
	}

	cfg := clientcredentials.Config{
		ClientID:     p.OAuth2ClientID,
		ClientSecret: p.OAuth2ClientSecret,
		TokenURL:     strings.TrimRight(p.OAuth2ProviderURL, "/") + "/access_token",
		EndpointParams: map[string][]string{
			"token_type": {"jwt"},
		},
	}
	base := &http.Client{Timeout: s.timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cfg.Client(ctx)
	client.Timeout = s.timeout
	s.clients[key] = client
	return client
}

// Ecommerce returns the partner's commerce client, or nil when it cannot be built.
func (s *Service) Ecommerce(p *models.Partner) *ecommerce.Client {
	api := s.APIClient(p)
	if api == nil || strings.TrimSpace(p.EcommerceAPIURL) == "" {
		return nil
	}
	c, err := ecommerce.New(api, p.EcommerceAPIURL)
	if err != nil {
		s.logger.Warn("invalid ecommerce api url", zap.String("partner", p.ShortCode), zap.Error(err))
		return nil
	}
	return c
}

// LMS returns the partner's course-mode client, or nil when it cannot be built.
func (s *Service) LMS(p *models.Partner) *lms.Client {
	api := s.APIClient(p)
	if api == nil || strings.TrimSpace(p.LMSCoursemodeAPIURL) == "" {
		return nil
	}
	c, err := lms.New(api, p.LMSCoursemodeAPIURL)
	if err != nil {
		s.logger.Warn("invalid lms coursemode api url", zap.String("partner", p.ShortCode), zap.Error(err))
		return nil
	}
	return c
}

// Marketing builds a marketing-site session client. Missing credentials yield a *marketing.ClientError.
func (s *Service) Marketing(p *models.Partner) (*marketing.Client, error) {
	if p == nil {
		return nil, &marketing.ClientError{Message: "partner is required"}
	}
	return marketing.New(
		p.MarketingSiteAPIUsername,
		p.MarketingSiteAPIPassword,
		p.MarketingSiteURLRoot,
		marketing.WithTimeout(s.timeout),
	)
}
