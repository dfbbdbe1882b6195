// Package signing holds the step definitions for the guardian signing flow.
package signing

import (
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the shared context these steps need.
type TestContext interface {
	POST(path string, body any, authenticated bool) error
	GET(path string, authenticated bool) error
	ResponseField(field string) (any, error)
	AssertStatus(expected int) error
}

// RegisterSteps registers the signing flow step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &signingSteps{tc: tc}

	ctx.Step(`^slips exist for booking "([^"]*)"$`, steps.slipsExistForBooking)
	ctx.Step(`^I open the slip with token "([^"]*)"$`, steps.openSlip)
	ctx.Step(`^I validate the token "([^"]*)"$`, steps.validateToken)
	ctx.Step(`^I sign the slip "([^"]*)" as "([^"]*)" with signature "([^"]*)"$`, steps.signSlip)
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response should list the slip violations$`, steps.responseShouldListViolations)
}

type signingSteps struct {
	tc TestContext
}

func (s *signingSteps) slipsExistForBooking(bookingID string) error {
	return s.tc.POST("/admin/slips", map[string]any{"booking_id": bookingID}, true)
}

func (s *signingSteps) openSlip(token string) error {
	return s.tc.GET("/slips/"+token, false)
}

func (s *signingSteps) validateToken(token string) error {
	return s.tc.GET("/slips/"+token+"/validate", false)
}

func (s *signingSteps) signSlip(token, guardian, sig string) error {
	return s.tc.POST("/slips/"+token+"/sign", map[string]any{
		"guardian_name":       guardian,
		"guardian_email":      strings.ToLower(strings.ReplaceAll(guardian, " ", ".")) + "@example.com",
		"signature":           sig,
		"signature_timestamp": time.Now().Format(time.RFC3339),
		"photo_consent":       true,
	}, false)
}

func (s *signingSteps) responseStatusShouldBe(status int) error {
	return s.tc.AssertStatus(status)
}

func (s *signingSteps) responseFieldShouldEqual(field, expected string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", v) != expected {
		return fmt.Errorf("field %q: expected %q, got %v", field, expected, v)
	}
	return nil
}

func (s *signingSteps) responseShouldListViolations() error {
	_, err := s.tc.ResponseField("violations")
	return err
}
