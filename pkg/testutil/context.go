package testutil

import (
	"context"
	"net/http"

	"slipgate/internal/platform/middleware"
)

// WithAdmin adds admin claims to the request context, simulating what the
// auth middleware does for an authenticated administrative request.
func WithAdmin(req *http.Request, adminID, organizationID string) *http.Request {
	ctx := req.Context()
	if adminID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyAdminID, adminID)
	}
	if organizationID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyOrganizationID, organizationID)
	}
	return req.WithContext(ctx)
}
