package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verity/internal/tenant/models"
	"verity/internal/tenant/store"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.service = New(s.store)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) register(webhook *WebhookInput, perms ...string) *RegisterResult {
	res, err := s.service.RegisterClient(s.ctx, RegisterRequest{
		Name:        "Molefe Lending",
		Webhook:     webhook,
		Permissions: perms,
	})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestRegisterClient() {
	s.Run("returns a usable api key", func() {
		res := s.register(nil, models.PermissionCasesDecide)
		s.True(strings.HasPrefix(res.APIKey, res.Client.APIKeyID+"."))
		s.True(res.Client.Active)
		s.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), res.Client.CreatedAt)
		s.NotContains(res.Client.APIKeyHash, res.APIKey)

		clientID, err := s.service.Authenticate(s.ctx, res.APIKey)
		s.Require().NoError(err)
		s.Equal(res.Client.ID, clientID)
	})

	s.Run("stores webhook config and permissions", func() {
		res := s.register(&WebhookInput{
			URL:     "https://hooks.example.com/verity",
			Secret:  "whsec_1",
			Enabled: true,
			Events:  []string{" Verification.Approved ", "verification.approved"},
		}, models.PermissionCasesDecide, models.PermissionCasesBulk)

		cfg, err := s.service.WebhookConfig(s.ctx, res.Client.ID)
		s.Require().NoError(err)
		s.True(cfg.Deliverable())
		s.Equal([]string{"verification.approved"}, cfg.Events)

		perms, err := s.service.Permissions(s.ctx, res.Client.ID)
		s.Require().NoError(err)
		s.ElementsMatch([]string{models.PermissionCasesDecide, models.PermissionCasesBulk}, perms)
	})

	s.Run("rejects unknown permissions", func() {
		_, err := s.service.RegisterClient(s.ctx, RegisterRequest{Name: "X", Permissions: []string{"cases:delete"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects an empty name", func() {
		_, err := s.service.RegisterClient(s.ctx, RegisterRequest{Name: "  "})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects a plain http webhook", func() {
		_, err := s.service.RegisterClient(s.ctx, RegisterRequest{
			Name:    "X",
			Webhook: &WebhookInput{URL: "http://hooks.example.com", Secret: "s", Enabled: true},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestAuthenticate() {
	res := s.register(nil)
	keyID, _, _ := strings.Cut(res.APIKey, ".")

	cases := map[string]string{
		"empty":        "",
		"no separator": "vk_0011223344556677",
		"wrong prefix": "pk_0011223344556677.secret",
		"unknown id":   "vk_ffffffffffffffff.secret",
		"bad secret":   keyID + ".not-the-secret",
	}
	for name, key := range cases {
		s.Run(name, func() {
			_, err := s.service.Authenticate(s.ctx, key)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "got %v", err)
		})
	}

	s.Run("inactive client", func() {
		s.Require().NoError(s.service.SetActive(s.ctx, res.Client.ID, false))
		_, err := s.service.Authenticate(s.ctx, res.APIKey)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		s.Require().NoError(s.service.SetActive(s.ctx, res.Client.ID, true))
		_, err = s.service.Authenticate(s.ctx, res.APIKey)
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestUpdateWebhook() {
	res := s.register(nil)

	cfg, err := s.service.UpdateWebhook(s.ctx, res.Client.ID, WebhookInput{
		URL:     "https://hooks.example.com/v2",
		Secret:  "whsec_2",
		Enabled: true,
		Events:  []string{"verification.rejected"},
	})
	s.Require().NoError(err)
	s.Equal("https://hooks.example.com/v2", cfg.URL)

	stored, err := s.service.WebhookConfig(s.ctx, res.Client.ID)
	s.Require().NoError(err)
	s.Equal("whsec_2", stored.Secret)
	s.True(stored.Subscribed("verification.rejected"))

	s.Run("enabled without secret", func() {
		_, err := s.service.UpdateWebhook(s.ctx, res.Client.ID, WebhookInput{URL: "https://hooks.example.com", Enabled: true})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown client", func() {
		_, err := s.service.UpdateWebhook(s.ctx, "missing", WebhookInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestLookupsForUnknownClient() {
	s.True(dErrors.HasCode(s.service.SetActive(s.ctx, "missing", false), dErrors.CodeNotFound))
	_, err := s.service.WebhookConfig(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.Permissions(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
