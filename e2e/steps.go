package e2e

import (
	"github.com/cucumber/godog"

	"liveness/e2e/steps/common"
	"liveness/e2e/steps/flow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (sign-in, generic assertions)
	common.RegisterSteps(ctx, tc)

	// Register liveness flow steps
	flow.RegisterSteps(ctx, tc)
}
