package e2e

import (
	"github.com/cucumber/godog"

	"slipgate/e2e/steps/signing"
)

// RegisterSteps registers all step definitions from the modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	signing.RegisterSteps(ctx, tc)
}
