package orchestrator

import (
	"testing"

	"github.com/entrhq/webtest/pkg/report"
	"github.com/entrhq/webtest/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestNextRole(t *testing.T) {
	msg := func(role types.Role, content string) *types.Message {
		return types.NewMessage(role, content)
	}

	tests := []struct {
		name string
		last *types.Message
		want types.Role
	}{
		{"session start", nil, types.RoleTester},
		{"tester goes to review", msg(types.RoleTester, "plan"), types.RoleSecurityAdmin},
		{"approved plan runs", msg(types.RoleSecurityAdmin, "APPROVED: safe"), types.RoleExecutor},
		{"approval is case-insensitive", msg(types.RoleSecurityAdmin, "looks good, Approved"), types.RoleExecutor},
		{"rejected plan returns to tester", msg(types.RoleSecurityAdmin, "REJECTED: bad url"), types.RoleTester},
		{"timeout goes to debugger", msg(types.RoleExecutor, "Timeout 30000ms exceeded"), types.RoleDebugAgent},
		{"error prefix goes to debugger", msg(types.RoleExecutor, "ERROR: boom"), types.RoleDebugAgent},
		{"click fallback failure", msg(types.RoleExecutor, "both normal and force click failed"), types.RoleDebugAgent},
		{"invisible element", msg(types.RoleExecutor, "element is not visible"), types.RoleDebugAgent},
		{"missing element", msg(types.RoleExecutor, "Element not found"), types.RoleDebugAgent},
		{"navigation timeout", msg(types.RoleExecutor, "navigation timeout while loading"), types.RoleDebugAgent},
		{"execution failed", msg(types.RoleExecutor, "Execution failed: click #a: Error: x"), types.RoleDebugAgent},
		{"clean execution", msg(types.RoleExecutor, "1. navigate to x: ok"), types.RoleTester},
		{"debugger hands back", msg(types.RoleDebugAgent, "ROOT CAUSE: selector"), types.RoleTester},
		{"unknown role", msg(types.Role(42), "?"), types.RoleTester},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRole(tt.last))
		})
	}
}

func TestNextRole_TimeoutNeedsDigits(t *testing.T) {
	assert.False(t, HasError("timeout ms exceeded"))
	assert.True(t, HasError("timeout 5ms exceeded"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(nil))
	assert.False(t, IsTerminal(types.NewMessage(types.RoleExecutor, "still running")))

	done := types.NewMessage(types.RoleExecutor, "bye")
	done.Done = true
	assert.True(t, IsTerminal(done))

	marker := types.NewMessage(types.RoleTester, "ok. "+report.Announcement("/r/report.md"))
	assert.True(t, IsTerminal(marker))

	upper := types.NewMessage(types.RoleTester, "YOU CAN FIND THE FULL TEST REPORT AT: /r")
	assert.True(t, IsTerminal(upper))
}
