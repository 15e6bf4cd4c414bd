package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateTargetAndFunctionGlobs(t *testing.T) {
	perms := json.RawMessage(`[{"minion\\*": ["network.*"]}, {"@resalt": ["admin.user.delete"]}]`)

	assert.False(t, Evaluate(perms, "minion1", "test.ping", nil, nil))
	assert.True(t, Evaluate(perms, "minion1", "network.ping", nil, nil))
	assert.False(t, Evaluate(perms, "other1", "network.ping", nil, nil))
	assert.True(t, Evaluate(perms, "@resalt", "admin.user.delete", nil, nil))
	assert.False(t, Evaluate(perms, "@resalt", "admin.user.create", nil, nil))
}

func TestHasResaltPermission(t *testing.T) {
	perms := json.RawMessage(`[{"minion\\*": ["network.*"]}, {"@resalt": ["admin.user.delete"]}]`)
	assert.True(t, HasResaltPermission(perms, "admin.user.delete"))
	assert.False(t, HasResaltPermission(perms, "admin.user.create"))

	super := json.RawMessage(`[{"@resalt": ["admin.superadmin"]}]`)
	for _, p := range []string{AdminSuperadmin, MinionList, SaltkeyDelete, "anything.at.all"} {
		assert.True(t, HasResaltPermission(super, p), p)
	}
}

// A bare string rule is the superuser-style shorthand: it matches on the
// function name alone, regardless of target.
func TestBareStringRuleMatchesFunRegardlessOfTarget(t *testing.T) {
	perms := json.RawMessage(`["test.ping"]`)
	assert.True(t, Evaluate(perms, "minion1", "test.ping", nil, nil))
	assert.True(t, Evaluate(perms, "completely-different", "test.ping", nil, nil))
	assert.False(t, Evaluate(perms, "minion1", "test.version", nil, nil))
}

func TestLoneStarMatchesEverything(t *testing.T) {
	perms := json.RawMessage(`[{"*": ["*"]}]`)
	assert.True(t, Evaluate(perms, "any-target", "any.fun", nil, nil))
}

func TestArgRules(t *testing.T) {
	perms := json.RawMessage(`[{"web1": [{"cmd.run": ["ls.*"]}]}]`)
	assert.True(t, Evaluate(perms, "web1", "cmd.run", []string{"ls -la"}, nil))
	assert.False(t, Evaluate(perms, "web1", "cmd.run", []string{"rm -rf /"}, nil))
	assert.False(t, Evaluate(perms, "web1", "cmd.run", nil, nil), "missing positional arg fails")

	emptyArgs := json.RawMessage(`[{"web1": [{"test.ping": []}]}]`)
	assert.True(t, Evaluate(emptyArgs, "web1", "test.ping", nil, nil))
	assert.False(t, Evaluate(emptyArgs, "web1", "test.ping", []string{"arg"}, nil), "empty arg rule requires no args")
}

func TestKwargRules(t *testing.T) {
	perms := json.RawMessage(`[{"web1": [{"state.apply": {"kwargs": {"test": "True"}}}]}]`)
	assert.True(t, Evaluate(perms, "web1", "state.apply", nil, map[string]string{"test": "True"}))
	assert.False(t, Evaluate(perms, "web1", "state.apply", nil, map[string]string{"test": "False"}))
	// Extra caller kwargs beyond the listed ones are not checked.
	assert.True(t, Evaluate(perms, "web1", "state.apply", nil, map[string]string{"test": "True", "queue": "True"}))

	emptyKwargs := json.RawMessage(`[{"web1": [{"state.apply": {"kwargs": {}}}]}]`)
	assert.True(t, Evaluate(emptyKwargs, "web1", "state.apply", nil, nil))
	assert.False(t, Evaluate(emptyKwargs, "web1", "state.apply", nil, map[string]string{"x": "1"}), "empty kwarg rule forbids kwargs")
}

func TestStringFunValueAccepts(t *testing.T) {
	perms := json.RawMessage(`[{"web1": [{"test.*": "anything"}]}]`)
	assert.True(t, Evaluate(perms, "web1", "test.ping", []string{"whatever"}, map[string]string{"k": "v"}))
}

// Appending rules can only grant more, never revoke: any tuple allowed by a
// prefix of the document is allowed by the whole document.
func TestMonotonicity(t *testing.T) {
	prefix := json.RawMessage(`[{"minion\\*": ["network.*"]}]`)
	extended := json.RawMessage(`[{"minion\\*": ["network.*"]}, {"other": ["disk.*"]}, "test.ping"]`)

	type tuple struct {
		target, fun string
	}
	for _, tc := range []tuple{{"minion1", "network.ping"}, {"minion99", "network.interfaces"}} {
		if Evaluate(prefix, tc.target, tc.fun, nil, nil) {
			assert.True(t, Evaluate(extended, tc.target, tc.fun, nil, nil), "%v", tc)
		}
	}
}

func TestEvaluateMalformedDocumentsFailClosed(t *testing.T) {
	assert.False(t, Evaluate(json.RawMessage(`not json`), "t", "f", nil, nil))
	assert.False(t, Evaluate(json.RawMessage(`{}`), "t", "f", nil, nil))
	assert.False(t, Evaluate(json.RawMessage(`[{"a": ["x"], "b": ["y"]}]`), "a", "x", nil, nil), "multi-key rule object is invalid")
}

func TestConcatGroupPerms(t *testing.T) {
	combined := ConcatGroupPerms([]string{
		`[{"@resalt": ["minion.list"]}]`,
		`["test.ping"]`,
		``,
		`not json`,
	})
	assert.JSONEq(t, `[{"@resalt": ["minion.list"]}, "test.ping"]`, combined)

	assert.Equal(t, "[]", ConcatGroupPerms(nil))
}
