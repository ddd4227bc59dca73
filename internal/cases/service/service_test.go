package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"verity/internal/cases/models"
	"verity/internal/cases/service/mocks"
	"verity/internal/cases/store"
	"verity/internal/extraction"
	"verity/internal/idempotency"
	"verity/internal/session"
	"verity/internal/validation"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/audit"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *store.InMemoryStore
	guard    *idempotency.Guard
	notifier *mocks.MockNotifier
	auditor  *mocks.MockAuditPublisher
	sessions *session.Service
	service  *Service
	now      time.Time
	ctx      context.Context
	seq      atomic.Int64

	auditMu sync.Mutex
	audited []audit.Event
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemoryStore()
	s.guard = idempotency.New(idempotency.NewInMemoryStore())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.sessions = session.NewService("test-signing-key-0123456789abcdef", "verity")
	// Session tokens are checked against the wall clock.
	s.now = time.Now().UTC().Truncate(time.Second)
	s.ctx = requestcontext.WithClientID(requestcontext.WithTime(context.Background(), s.now), "client-1")
	s.seq.Store(0)
	s.audited = nil

	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.auditMu.Lock()
		defer s.auditMu.Unlock()
		s.audited = append(s.audited, e)
		return nil
	}).AnyTimes()

	s.service = s.newService(s.store, s.guard)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(st Store, guard IdempotencyGuard, opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.auditor),
		WithSessionIssuer(s.sessions),
		WithSDKBaseURL("https://verify.example.com/"),
		WithIDGenerator(func() string { return fmt.Sprintf("case-%d", s.seq.Add(1)) }),
		WithReservationWait(150 * time.Millisecond),
	}
	return New(st, guard, s.notifier, append(base, opts...)...)
}

func (s *ServiceSuite) seedCase(id string, status models.Status) *models.Case {
	c := &models.Case{
		ID:           id,
		ClientID:     "client-1",
		DocumentType: models.DocumentNationalID,
		Status:       status,
		Customer:     models.Customer{Email: "kagiso@example.com", Name: "Kagiso Molefe"},
		CreatedAt:    s.now.Add(-time.Hour),
		UpdatedAt:    s.now.Add(-time.Hour),
		ExpiresAt:    s.now.Add(DefaultCaseTTL),
	}
	s.Require().NoError(s.store.Create(s.ctx, c))
	return c
}

func (s *ServiceSuite) actions() []string {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]string, 0, len(s.audited))
	for _, e := range s.audited {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) lastAudit() audit.Event {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.Require().NotEmpty(s.audited)
	return s.audited[len(s.audited)-1]
}

func (s *ServiceSuite) expectNotify(caseID, event string) {
	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Cond(func(x any) bool {
			c, ok := x.(*models.Case)
			return ok && c.ID == caseID
		}), event).
		Return(nil)
}

func (s *ServiceSuite) createRequest(key string) CreateRequest {
	return CreateRequest{
		ClientID:       "client-1",
		Customer:       models.Customer{Email: "kagiso@example.com"},
		DocumentType:   models.DocumentPassport,
		RedirectURL:    "https://client.example.com/done",
		IdempotencyKey: key,
	}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("opens a case with a capture session", func() {
		res, err := s.service.Create(s.ctx, s.createRequest(""))
		s.Require().NoError(err)

		s.False(res.Idempotent)
		s.Equal(models.StatusCreated, res.Case.Status)
		s.Equal(models.DocumentPassport, res.Case.DocumentType)
		s.Equal(s.now.Add(DefaultCaseTTL), res.Case.ExpiresAt)
		s.Equal("https://verify.example.com/v/"+res.Case.ID, res.SDKURL)

		caseID, clientID, err := s.sessions.ValidateSession(res.SessionToken)
		s.Require().NoError(err)
		s.Equal(res.Case.ID, caseID)
		s.Equal("client-1", clientID)

		stored, err := s.store.FindByID(s.ctx, res.Case.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCreated, stored.Status)
		s.Contains(s.actions(), string(audit.EventCaseCreated))
	})

	s.Run("defaults the document type", func() {
		req := s.createRequest("")
		req.DocumentType = ""
		res, err := s.service.Create(s.ctx, req)
		s.Require().NoError(err)
		s.Equal(models.DocumentNationalID, res.Case.DocumentType)
	})

	s.Run("requires a customer contact", func() {
		req := s.createRequest("")
		req.Customer = models.Customer{}
		_, err := s.service.Create(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires a client", func() {
		req := s.createRequest("")
		req.ClientID = ""
		_, err := s.service.Create(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("logs the customer email masked", func() {
		var buf bytes.Buffer
		svc := s.newService(s.store, s.guard, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
		_, err := svc.Create(s.ctx, s.createRequest(""))
		s.Require().NoError(err)
		s.Contains(buf.String(), "customer_email=k***@example.com")
		s.NotContains(buf.String(), "kagiso@example.com")
	})
}

func (s *ServiceSuite) TestCreateIdempotent() {
	s.Run("same key replays the first case", func() {
		first, err := s.service.Create(s.ctx, s.createRequest("key-1"))
		s.Require().NoError(err)

		second, err := s.service.Create(s.ctx, s.createRequest("key-1"))
		s.Require().NoError(err)
		s.True(second.Idempotent)
		s.Equal(first.Case.ID, second.Case.ID)
		s.NotEmpty(second.SessionToken)
	})

	s.Run("keys are scoped per client", func() {
		first, err := s.service.Create(s.ctx, s.createRequest("key-2"))
		s.Require().NoError(err)

		req := s.createRequest("key-2")
		req.ClientID = "client-2"
		other, err := s.service.Create(requestcontext.WithClientID(s.ctx, "client-2"), req)
		s.Require().NoError(err)
		s.False(other.Idempotent)
		s.NotEqual(first.Case.ID, other.Case.ID)
	})

	s.Run("concurrent requests create one case", func() {
		const workers = 10
		var wg sync.WaitGroup
		results := make([]*CreateResult, workers)
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.service.Create(s.ctx, s.createRequest("key-race"))
			}(i)
		}
		wg.Wait()

		fresh := 0
		for i := range workers {
			s.Require().NoError(errs[i])
			s.Equal(results[0].Case.ID, results[i].Case.ID)
			if !results[i].Idempotent {
				fresh++
			}
		}
		s.Equal(1, fresh)
	})

	s.Run("reservation without a case reports conflict", func() {
		s.Require().NoError(s.guard.Store(s.ctx, "client-1", "key-ghost", "case-missing"))

		_, err := s.service.Create(s.ctx, s.createRequest("key-ghost"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestCreateReleasesKeyWhenWriteFails() {
	st := mocks.NewMockStore(s.ctrl)
	svc := s.newService(st, s.guard)
	st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	_, err := svc.Create(s.ctx, s.createRequest("key-fail"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, found, err := s.guard.Check(s.ctx, "client-1", "key-fail")
	s.Require().NoError(err)
	s.False(found)
}

func (s *ServiceSuite) TestCreateLostRaceToFailedWinner() {
	guard := mocks.NewMockIdempotencyGuard(s.ctrl)
	svc := s.newService(s.store, guard)
	guard.EXPECT().Check(gomock.Any(), "client-1", "key-x").Return("", false, nil).Times(2)
	guard.EXPECT().Store(gomock.Any(), "client-1", "key-x", gomock.Any()).
		Return(fmt.Errorf("idempotency key already reserved: %w", sentinel.ErrConflict))

	_, err := svc.Create(s.ctx, s.createRequest("key-x"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestUpdateStatus() {
	s.Run("terminal status stamps completion and notifies", func() {
		s.seedCase("case-a", models.StatusPendingReview)
		s.expectNotify("case-a", models.EventApproved)

		updated, err := s.service.UpdateStatus(s.ctx, "case-a", models.StatusApproved, models.Update{})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, updated.Status)
		s.Require().NotNil(updated.CompletedAt)
		s.Equal(s.now, *updated.CompletedAt)

		e := s.lastAudit()
		s.Equal(string(audit.EventCaseStatusChanged), e.Action)
		s.Equal("pending_review -> approved", e.Reason)
	})

	s.Run("notifying statuses", func() {
		cases := []struct {
			from  models.Status
			to    models.Status
			event string
		}{
			{models.StatusPendingReview, models.StatusRejected, models.EventRejected},
			{models.StatusInReview, models.StatusResubmissionRequired, models.EventResubmissionRequired},
			{models.StatusCreated, models.StatusExpired, models.EventExpired},
		}
		for i, tc := range cases {
			id := fmt.Sprintf("case-n%d", i)
			s.seedCase(id, tc.from)
			s.expectNotify(id, tc.event)

			_, err := s.service.UpdateStatus(s.ctx, id, tc.to, models.Update{})
			s.Require().NoError(err, "%s -> %s", tc.from, tc.to)
		}
	})

	s.Run("non-terminal status does not notify", func() {
		s.seedCase("case-b", models.StatusCreated)

		updated, err := s.service.UpdateStatus(s.ctx, "case-b", models.StatusSubmitted, models.Update{})
		s.Require().NoError(err)
		s.Nil(updated.CompletedAt)
		s.Require().NotNil(updated.SubmittedAt)
	})

	s.Run("notify failure does not fail the transition", func() {
		s.seedCase("case-c", models.StatusPendingReview)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), models.EventRejected).Return(errors.New("queue full"))

		_, err := s.service.UpdateStatus(s.ctx, "case-c", models.StatusRejected, models.Update{RejectionReason: "blurry"})
		s.Require().NoError(err)

		stored, err := s.store.FindByID(s.ctx, "case-c")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, stored.Status)
		s.Equal("blurry", stored.RejectionReason)
	})

	s.Run("terminal case cannot move", func() {
		s.seedCase("case-d", models.StatusApproved)

		_, err := s.service.UpdateStatus(s.ctx, "case-d", models.StatusRejected, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "case is already approved")
	})

	s.Run("transition outside the graph", func() {
		s.seedCase("case-e", models.StatusCreated)

		_, err := s.service.UpdateStatus(s.ctx, "case-e", models.StatusApproved, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown status", func() {
		_, err := s.service.UpdateStatus(s.ctx, "case-a", models.Status("archived"), models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("missing case", func() {
		_, err := s.service.UpdateStatus(s.ctx, "nope", models.StatusSubmitted, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("case of another client is hidden", func() {
		s.seedCase("case-f", models.StatusCreated)
		ctx := requestcontext.WithClientID(s.ctx, "client-2")

		_, err := s.service.UpdateStatus(ctx, "case-f", models.StatusSubmitted, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateStatusWriteFailures() {
	pending := &models.Case{ID: "case-w", ClientID: "client-1", Status: models.StatusPendingReview, ExpiresAt: s.now.Add(time.Hour)}

	s.Run("concurrent change is a conflict", func() {
		st := mocks.NewMockStore(s.ctrl)
		svc := s.newService(st, s.guard)
		st.EXPECT().FindByID(gomock.Any(), "case-w").Return(pending.Clone(), nil)
		st.EXPECT().UpdateIfStatus(gomock.Any(), gomock.Any(), models.StatusPendingReview).
			Return(fmt.Errorf("case-w is approved: %w", sentinel.ErrInvalidState))

		_, err := svc.UpdateStatus(s.ctx, "case-w", models.StatusRejected, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("transient failure stays retryable", func() {
		st := mocks.NewMockStore(s.ctrl)
		svc := s.newService(st, s.guard)
		st.EXPECT().FindByID(gomock.Any(), "case-w").Return(pending.Clone(), nil)
		st.EXPECT().UpdateIfStatus(gomock.Any(), gomock.Any(), models.StatusPendingReview).
			Return(sentinel.Transient(sentinel.TransientThrottling, errors.New("slow down")))

		_, err := svc.UpdateStatus(s.ctx, "case-w", models.StatusApproved, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.True(sentinel.IsTransient(err))
	})
}

func (s *ServiceSuite) TestSubmitFlow() {
	s.seedCase("case-s", models.StatusCreated)

	c, err := s.service.MarkDocumentsUploading(s.ctx, "case-s")
	s.Require().NoError(err)
	s.Equal(models.StatusDocumentsUploading, c.Status)

	c, err = s.service.MarkDocumentsUploading(s.ctx, "case-s")
	s.Require().NoError(err)
	s.Equal(models.StatusDocumentsUploading, c.Status)

	c, err = s.service.Submit(s.ctx, "case-s")
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, c.Status)
	s.Contains(s.actions(), string(audit.EventCaseSubmitted))

	_, err = s.service.Submit(s.ctx, "case-s")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

type stubExtractor struct{ result extraction.Result }

func (e stubExtractor) Extract(string, []extraction.OCRBlock) extraction.Result { return e.result }

type stubValidator struct{ result validation.Result }

func (v stubValidator) Validate(string, map[string]string, time.Time) validation.Result {
	return v.result
}

func (s *ServiceSuite) TestProcessDocument() {
	blocks := []extraction.OCRBlock{{Text: "ID NO: 123456789", Confidence: 95}}
	clean := extraction.Result{
		Fields:            map[string]string{"id_number": "123456789"},
		Confidence:        map[string]float64{"id_number": 95},
		OverallConfidence: 95,
	}
	passed := &models.BiometricSummary{Passed: true, LivenessScore: 0.98, SimilarityScore: 0.95}

	tests := []struct {
		name       string
		ext        extraction.Result
		val        validation.Result
		bio        *models.BiometricSummary
		wantStatus models.Status
		wantEvent  string
	}{
		{
			name:       "clean document with passing biometrics is approved",
			ext:        clean,
			val:        validation.Result{Valid: true},
			bio:        passed,
			wantStatus: models.StatusApproved,
			wantEvent:  models.EventApproved,
		},
		{
			name:       "missing biometrics waits for review",
			ext:        clean,
			val:        validation.Result{Valid: true},
			wantStatus: models.StatusPendingReview,
		},
		{
			name:       "biometrics flagged for review",
			ext:        clean,
			val:        validation.Result{Valid: true},
			bio:        &models.BiometricSummary{Passed: true, RequiresManualReview: true},
			wantStatus: models.StatusPendingReview,
		},
		{
			name: "low confidence extraction waits for review",
			ext: extraction.Result{
				Fields:               clean.Fields,
				OverallConfidence:    60,
				RequiresManualReview: true,
			},
			val:        validation.Result{Valid: true},
			bio:        passed,
			wantStatus: models.StatusPendingReview,
		},
		{
			name:       "invalid fields wait for review",
			ext:        clean,
			val:        validation.Result{Errors: []string{"id_number must be 9 digits"}},
			bio:        passed,
			wantStatus: models.StatusPendingReview,
		},
		{
			name:       "expired document is auto-rejected",
			ext:        clean,
			val:        validation.Result{Expired: true, ExpiredDays: 12, Errors: []string{"document expired"}},
			bio:        passed,
			wantStatus: models.StatusAutoRejected,
		},
	}

	for i, tc := range tests {
		s.Run(tc.name, func() {
			id := fmt.Sprintf("case-p%d", i)
			s.seedCase(id, models.StatusSubmitted)
			svc := s.newService(s.store, s.guard,
				WithExtractor(stubExtractor{result: tc.ext}),
				WithFieldValidator(stubValidator{result: tc.val}),
			)
			if tc.wantEvent != "" {
				s.expectNotify(id, tc.wantEvent)
			}

			out, err := svc.ProcessDocument(s.ctx, id, models.ProcessingInput{Blocks: blocks, Biometrics: tc.bio})
			s.Require().NoError(err)
			s.Equal(tc.wantStatus, out.Case.Status)
			s.Equal(tc.ext.Fields, out.Case.ExtractedData)
			s.Equal(tc.ext.OverallConfidence, out.Case.OverallConfidence)
			s.Equal(tc.val.Errors, out.ValidationErrors)
		})
	}

	s.Run("expired document carries the rejection reason", func() {
		stored, err := s.store.FindByID(s.ctx, fmt.Sprintf("case-p%d", len(tests)-1))
		s.Require().NoError(err)
		s.Equal(models.RejectionDocumentExpired, stored.RejectionCode)
		s.Equal("document expired 12 days ago", stored.RejectionReason)
		s.NotNil(stored.CompletedAt)
	})

	s.Run("requires OCR blocks", func() {
		_, err := s.service.ProcessDocument(s.ctx, "case-p0", models.ProcessingInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("case must be submitted", func() {
		s.seedCase("case-q", models.StatusCreated)
		_, err := s.service.ProcessDocument(s.ctx, "case-q", models.ProcessingInput{Blocks: blocks})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

// routeFailingStore fails the next write into a status once.
type routeFailingStore struct {
	*store.InMemoryStore
	fail map[models.Status]error
}

func (f *routeFailingStore) UpdateIfStatus(ctx context.Context, c *models.Case, expected models.Status) error {
	if err, ok := f.fail[c.Status]; ok {
		delete(f.fail, c.Status)
		return err
	}
	return f.InMemoryStore.UpdateIfStatus(ctx, c, expected)
}

func (s *ServiceSuite) TestProcessDocumentRetriesAfterFailedRouting() {
	s.seedCase("case-stuck", models.StatusSubmitted)
	st := &routeFailingStore{
		InMemoryStore: s.store,
		fail: map[models.Status]error{
			models.StatusPendingReview: sentinel.Transient(sentinel.TransientThrottling, errors.New("slow down")),
		},
	}
	svc := s.newService(st, s.guard,
		WithExtractor(stubExtractor{result: extraction.Result{
			Fields:            map[string]string{"id_number": "123456789"},
			Confidence:        map[string]float64{"id_number": 95},
			OverallConfidence: 95,
		}}),
		WithFieldValidator(stubValidator{result: validation.Result{Valid: true}}),
	)
	in := models.ProcessingInput{Blocks: []extraction.OCRBlock{{Text: "ID NO: 123456789", Confidence: 95}}}

	_, err := svc.ProcessDocument(s.ctx, "case-stuck", in)
	s.Require().Error(err)
	s.True(sentinel.IsTransient(err))
	stored, err := s.store.FindByID(s.ctx, "case-stuck")
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, stored.Status)

	out, err := svc.ProcessDocument(s.ctx, "case-stuck", in)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, out.Case.Status)
	s.Equal("123456789", out.Case.ExtractedData["id_number"])
}

func (s *ServiceSuite) TestDecide() {
	s.Run("approve from review", func() {
		s.seedCase("case-r1", models.StatusInReview)
		s.expectNotify("case-r1", models.EventApproved)
		ctx := requestcontext.WithClientMetadata(requestcontext.WithActorID(s.ctx, "reviewer-7"), "10.0.0.1",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

		c, err := s.service.Approve(ctx, "case-r1", "looks good")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, c.Status)

		e := s.lastAudit()
		s.Equal(string(audit.EventCaseApproved), e.Action)
		s.Equal("reviewer-7", e.ActorID)
		s.Equal("looks good", e.Reason)
		s.NotEmpty(e.Agent)
	})

	s.Run("reject records reason and code", func() {
		s.seedCase("case-r2", models.StatusPendingReview)
		s.expectNotify("case-r2", models.EventRejected)

		c, err := s.service.Reject(s.ctx, "case-r2", "document tampered", "TAMPERED")
		s.Require().NoError(err)
		s.Equal("document tampered", c.RejectionReason)
		s.Equal("TAMPERED", c.RejectionCode)
		s.Equal(string(audit.EventCaseRejected), s.lastAudit().Action)
	})

	s.Run("resubmission requires a reason", func() {
		s.seedCase("case-r3", models.StatusPendingReview)

		_, err := s.service.RequestResubmission(s.ctx, "case-r3", "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		s.expectNotify("case-r3", models.EventResubmissionRequired)
		c, err := s.service.RequestResubmission(s.ctx, "case-r3", "photo too dark")
		s.Require().NoError(err)
		s.Equal(models.StatusResubmissionRequired, c.Status)
		s.Nil(c.CompletedAt)
		s.Equal(string(audit.EventCaseResubmissionReq), s.lastAudit().Action)
	})

	s.Run("bulk decisions are audited as bulk", func() {
		s.seedCase("case-r4", models.StatusPendingReview)
		s.expectNotify("case-r4", models.EventRejected)

		_, err := s.service.Decide(s.ctx, "case-r4", Decision{
			Status:          models.StatusRejected,
			Reason:          "duplicate",
			BulkOperationID: "bulk-1",
			BatchSize:       3,
		})
		s.Require().NoError(err)
		e := s.lastAudit()
		s.Equal(string(audit.EventCaseBulkRejected), e.Action)
		s.Equal("bulk-1", e.BulkOperationID)
		s.Equal(3, e.BatchSize)
	})

	s.Run("case not awaiting review", func() {
		s.seedCase("case-r5", models.StatusSubmitted)

		_, err := s.service.Approve(s.ctx, "case-r5", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("decided case cannot be decided again", func() {
		s.seedCase("case-r6", models.StatusRejected)

		_, err := s.service.Approve(s.ctx, "case-r6", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unsupported decision", func() {
		_, err := s.service.Decide(s.ctx, "case-r6", Decision{Status: models.StatusExpired})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestConcurrentDecisionsHaveOneWinner() {
	s.seedCase("case-race", models.StatusPendingReview)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	const reviewers = 8
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := range reviewers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.service.Approve(s.ctx, "case-race", "")
			} else {
				_, err = s.service.Reject(s.ctx, "case-race", "mismatch", "")
			}
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(reviewers-1), conflicts.Load())
}

func (s *ServiceSuite) TestExpireStale() {
	old := s.seedCase("case-x1", models.StatusDocumentsUploading)
	old.ExpiresAt = s.now.Add(-time.Minute)
	s.Require().NoError(s.store.UpdateIfStatus(s.ctx, old, models.StatusDocumentsUploading))

	done := s.seedCase("case-x2", models.StatusApproved)
	done.ExpiresAt = s.now.Add(-time.Minute)
	s.Require().NoError(s.store.UpdateIfStatus(s.ctx, done, models.StatusApproved))

	s.seedCase("case-x3", models.StatusCreated)

	s.expectNotify("case-x1", models.EventExpired)
	n, err := s.service.ExpireStale(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(1, n)

	stored, err := s.store.FindByID(s.ctx, "case-x1")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
	s.Equal(models.RejectionCaseExpired, stored.RejectionCode)
	s.NotNil(stored.CompletedAt)
	s.Contains(s.actions(), string(audit.EventCaseExpired))

	fresh, err := s.store.FindByID(s.ctx, "case-x3")
	s.Require().NoError(err)
	s.Equal(models.StatusCreated, fresh.Status)
}
