package support

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// theErrorShouldMention verifies the failed command's output mentions text,
// ignoring case.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastExitCode == 0 {
		return errors.New("command succeeded, no error to inspect")
	}
	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(text)) {
		return fmt.Errorf("error output does not mention '%s'\nOutput: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMentionUnknownFlag verifies cobra rejected a flag.
func (testCtx *TestContext) theErrorShouldMentionUnknownFlag() error {
	return testCtx.theErrorShouldMention("unknown flag")
}

// theErrorShouldSuggestAvailableCommands verifies cobra printed a suggestion.
func (testCtx *TestContext) theErrorShouldSuggestAvailableCommands() error {
	if err := testCtx.theErrorShouldMention("unknown command"); err != nil {
		return err
	}
	if !strings.Contains(testCtx.LastOutput, "Did you mean") {
		return fmt.Errorf("no command suggestion in output: %s", testCtx.LastOutput)
	}
	return nil
}

// theExitCodeShouldBe checks the exact exit status.
func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code %d, expected %d\nOutput: %s", testCtx.LastExitCode, code, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContainVersionInformation checks the version banner.
func (testCtx *TestContext) theOutputShouldContainVersionInformation() error {
	for _, want := range []string{"regionseg version", "Commit:", "Go:"} {
		if !strings.Contains(testCtx.LastOutput, want) {
			return fmt.Errorf("version output lacks %q: %s", want, testCtx.LastOutput)
		}
	}
	return nil
}

// RegisterErrorSteps registers error handling steps.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the error should mention an unknown flag$`, testCtx.theErrorShouldMentionUnknownFlag)
	sc.Step(`^the error should suggest available commands$`, testCtx.theErrorShouldSuggestAvailableCommands)
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^the output should contain version information$`, testCtx.theOutputShouldContainVersionInformation)
}
