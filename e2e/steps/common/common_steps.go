package common

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SignIn(userID string) error
	ClearToken()
	Status() int
	ResponseField(field string) (any, error)
}

// RegisterSteps registers sign-in and generic assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am signed in as a new user$`, steps.signInAsNewUser)
	ctx.Step(`^I am not signed in$`, steps.signOut)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.responseFieldShouldBeBool)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) signInAsNewUser(ctx context.Context) error {
	return s.tc.SignIn(fmt.Sprintf("e2e-%d", time.Now().UnixNano()))
}

func (s *commonSteps) signOut(ctx context.Context) error {
	s.tc.ClearToken()
	return nil
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.Status(); got != expected {
		return fmt.Errorf("expected status %d, got %d", expected, got)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, field, expected string) error {
	value, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBeBool(ctx context.Context, field, expected string) error {
	want, err := strconv.ParseBool(expected)
	if err != nil {
		return err
	}
	value, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	got, ok := value.(bool)
	if !ok || got != want {
		return fmt.Errorf("expected %s to be %v, got %v", field, want, value)
	}
	return nil
}
