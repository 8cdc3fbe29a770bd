package orchestrator

import (
	"regexp"
	"strings"

	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
)

// errorPatterns mark an executor message as a failure worth diagnosing.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeout \d+ms exceeded`),
	regexp.MustCompile(`(?i)error:`),
	regexp.MustCompile(`(?i)both normal and force click failed`),
	regexp.MustCompile(`(?i)element is not visible`),
	regexp.MustCompile(`(?i)element not found`),
	regexp.MustCompile(`(?i)navigation timeout`),
	regexp.MustCompile(`(?i)execution failed`),
}

// rule picks the next role after a message from the keyed role.
type rule func(content string) types.Role

var transitions = map[types.Role]rule{
	types.RoleExecutor: func(content string) types.Role {
		if HasError(content) {
			return types.RoleDebugAgent
		}
		return types.RoleTester
	},
	types.RoleDebugAgent: func(string) types.Role {
		return types.RoleTester
	},
	types.RoleTester: func(string) types.Role {
		return types.RoleSecurityAdmin
	},
	types.RoleSecurityAdmin: func(content string) types.Role {
		if strings.Contains(strings.ToLower(content), "approved") {
			return types.RoleExecutor
		}
		return types.RoleTester
	},
}

// NextRole decides who speaks after last. A nil message starts the session
// with the tester; anything unrecognized goes back to the tester.
func NextRole(last *types.Message) types.Role {
	if last == nil {
		return types.RoleTester
	}
	if next, ok := transitions[last.Role]; ok {
		return next(last.Content)
	}
	return types.RoleTester
}

// HasError reports whether content matches any executor error pattern.
func HasError(content string) bool {
	for _, p := range errorPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether msg ends the session: either it carries the
// Done flag or it contains the report completion marker.
func IsTerminal(msg *types.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Done {
		return true
	}
	return strings.Contains(strings.ToLower(msg.Content), strings.ToLower(report.CompletionMarker))
}
