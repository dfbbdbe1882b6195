package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"slipgate/internal/slip"
	"slipgate/internal/slip/handler/mocks"
	"slipgate/internal/slip/service"
	pkgerrors "slipgate/pkg/errors"
	"slipgate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mock_service.go -package=mocks Service

type PublicHandlerSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *PublicHandlerSuite) SetupSuite() {
	s.ctx = context.Background()
}

func TestPublicHandlerSuite(t *testing.T) {
	suite.Run(t, new(PublicHandlerSuite))
}

func newTestHandler(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	New(mockService, logger, nil).Register(r)
	return r, mockService
}

func sampleSlip() *slip.Slip {
	return &slip.Slip{
		AccessToken:  "tok-1",
		ProgramTitle: "Museum Trip",
		ActivityDate: time.Now().AddDate(0, 0, 7),
		SubjectName:  "Ava Martin",
		GuardianName: "Dana Martin",
	}
}

func (s *PublicHandlerSuite) TestGetSlip() {
	router, mockService := newTestHandler(s.T())
	mockService.EXPECT().GetByToken(gomock.Any(), "tok-1").Return(sampleSlip(), nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/slips/tok-1", nil)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[slipResponse](s.T(), rr)
	s.Equal("Ava Martin", resp.SubjectName)
	s.Equal("unsigned", resp.Status)
}

func (s *PublicHandlerSuite) TestGetSlipErrors() {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown token", pkgerrors.New(pkgerrors.CodeNotFound, "slip not found"), http.StatusNotFound, "not_found"},
		{"expired access", pkgerrors.New(pkgerrors.CodeAccessExpired, "expired"), http.StatusGone, "access_expired"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			router, mockService := newTestHandler(s.T())
			mockService.EXPECT().GetByToken(gomock.Any(), "tok-x").Return(nil, tt.err)

			req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/slips/tok-x", nil)
			rr := testutil.DoRequest(router, req)

			testutil.AssertStatus(s.T(), rr, tt.wantStatus)
			testutil.AssertErrorCode(s.T(), rr, tt.wantCode)
		})
	}
}

func (s *PublicHandlerSuite) TestValidateToken() {
	router, mockService := newTestHandler(s.T())
	mockService.EXPECT().TokenStatus(gomock.Any(), "tok-1").Return("valid", sampleSlip(), nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/slips/tok-1/validate", nil)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "status", "valid")
	testutil.AssertJSONContains(s.T(), rr, "subject_name", "Ava Martin")
}

func (s *PublicHandlerSuite) TestGetTemplate() {
	router, mockService := newTestHandler(s.T())
	mockService.EXPECT().TemplateContent(gomock.Any(), "tok-1").Return("consent text", nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/slips/tok-1/template", nil)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "content", "consent text")
}

func (s *PublicHandlerSuite) TestSign() {
	router, mockService := newTestHandler(s.T())

	signed := sampleSlip()
	signed.Signed = true
	now := time.Now()
	signed.SignedAt = &now

	mockService.EXPECT().
		Sign(gomock.Any(), "tok-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req service.SignRequest, origin string) (*slip.Slip, error) {
			s.Equal("Dana Martin", req.GuardianName)
			s.Equal(`{"x":1}`, req.Signature.Signature)
			s.Equal("192.0.2.7", origin)
			return signed, nil
		})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/slips/tok-1/sign", signRequest{
		GuardianName:       "Dana Martin",
		GuardianEmail:      "dana.martin@example.com",
		Signature:          `{"x":1}`,
		SignatureTimestamp: "2024-01-15T10:00:00Z",
		PhotoConsent:       true,
	})
	req.Header.Set("X-Forwarded-For", "192.0.2.7, 10.0.0.1")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[slipResponse](s.T(), rr)
	s.Equal("signed", resp.Status)
}

func (s *PublicHandlerSuite) TestSignValidationFailure() {
	router, mockService := newTestHandler(s.T())
	mockService.EXPECT().
		Sign(gomock.Any(), "tok-1", gomock.Any(), gomock.Any()).
		Return(nil, pkgerrors.NewValidation([]string{"signature is required", "invalid timestamp format"}))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/slips/tok-1/sign", signRequest{GuardianName: "Dana Martin"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	resp := testutil.UnmarshalResponse[struct {
		Violations []string `json:"violations"`
	}](s.T(), rr)
	s.Len(resp.Violations, 2)
}

func (s *PublicHandlerSuite) TestSignConflict() {
	router, mockService := newTestHandler(s.T())
	mockService.EXPECT().
		Sign(gomock.Any(), "tok-1", gomock.Any(), gomock.Any()).
		Return(nil, pkgerrors.New(pkgerrors.CodeAlreadySigned, "slip has already been signed"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/slips/tok-1/sign", signRequest{
		GuardianName: "Dana Martin",
		Signature:    `{"x":1}`,
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	testutil.AssertErrorCode(s.T(), rr, "already_signed")
}

func (s *PublicHandlerSuite) TestSignMalformedBody() {
	router, _ := newTestHandler(s.T())

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/slips/tok-1/sign", nil)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "bad_request")
}
