// Package permission evaluates nested, regex-bearing permission rule
// documents against an action tuple (target, function, args, kwargs).
//
// A rule document is a JSON array whose elements are either a bare string
// (a function glob, matched against the current target implicitly) or a
// single-key object mapping a target glob to a list of function rules. This
// mirrors the control plane's upstream permission format exactly; see
// DESIGN.md for the grounding in the original Rust implementation.
package permission

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// Well-known permission names, the full catalogue from the authorisation
// engine design.
const (
	AdminSuperadmin = "admin.superadmin"
	AdminGroup      = "admin.group"
	AdminUser       = "admin.user"

	RunLive                 = "run.live"
	RunApprovalList         = "run.approval.list"
	RunApprovalSubmit       = "run.approval.submit"
	RunApprovalJudge        = "run.approval.judge"
	RunApprovalExecute      = "run.approval.execute"
	RunApprovalRecount      = "run.approval.recount"
	RunApprovalClose        = "run.approval.close"
	RunApprovalDelete       = "run.approval.delete"
	RunTemplateList         = "run.template.list"
	RunTemplateLocal        = "run.template.local"
	RunTemplateGlobal       = "run.template.global"

	MinionList             = "minion.list"
	MinionConformity       = "minion.conformity"
	MinionPillars          = "minion.pillars"
	MinionPackages         = "minion.packages"
	MinionRefresh          = "minion.refresh"
	MinionPresetsList      = "minion.presets.list"
	MinionPresetsManage    = "minion.presets.manage"
	MinionGrainexplorer    = "minion.grainexplorer"

	JobList = "job.list"

	EventList = "event.list"

	SaltkeyList   = "saltkey.list"
	SaltkeyAccept = "saltkey.accept"
	SaltkeyReject = "saltkey.reject"
	SaltkeyDelete = "saltkey.delete"

	UserList     = "user.list"
	UserEmail    = "user.email"
	UserPassword = "user.password"
)

// ResaltTarget is the pseudo-target used for permissions scoped to this
// control plane itself, rather than to a Salt minion target expression.
const ResaltTarget = "@resalt"

var (
	regexCache   = map[string]*regexp.Regexp{}
	regexCacheMu sync.Mutex
)

// escapedStar rewrites any `<alnum>\*` sequence to `<alnum>.*`. The rest of
// the glob is used as regex source verbatim, so a plain `.` or `.*` keeps
// its regex meaning.
var escapedStar = regexp.MustCompile(`([a-zA-Z0-9])\\\*`)

// saltGlobToRegex translates a Salt-style glob to an anchored regex: a
// literal backslash-star after an alphanumeric becomes `.*`, then the whole
// expression is anchored with ^...$.
func saltGlobToRegex(glob string) *regexp.Regexp {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[glob]; ok {
		return re
	}
	pattern := "^" + escapedStar.ReplaceAllString(glob, "$1.*") + "$"
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		// A malformed glob should fail closed (never match), not panic.
		compiled = regexp.MustCompile(`\x00never-matches\x00`)
	}
	regexCache[glob] = compiled
	return compiled
}

func globMatches(glob, s string) bool {
	// A lone "*" rule key matches any target or function outright; it is
	// not valid regex source after the transform.
	if glob == "*" {
		return true
	}
	return saltGlobToRegex(glob).MatchString(s)
}

func evaluateFunction(funSection json.RawMessage, fun string, args []string, kwargs map[string]string) bool {
	var asString string
	if err := json.Unmarshal(funSection, &asString); err == nil {
		return globMatches(asString, fun)
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(funSection, &asObject); err != nil || len(asObject) != 1 {
		return false
	}

	for key, value := range asObject {
		if !globMatches(key, fun) {
			continue
		}

		// value: string ⇒ accept
		var valueString string
		if err := json.Unmarshal(value, &valueString); err == nil {
			return true
		}

		// value: array ⇒ positional arg globs
		var valueArray []string
		if err := json.Unmarshal(value, &valueArray); err == nil {
			if len(valueArray) == 0 {
				return len(args) == 0
			}
			for i, argGlob := range valueArray {
				if i >= len(args) || !globMatches(argGlob, args[i]) {
					return false
				}
			}
			return true
		}

		// value: object ⇒ {args?: [...], kwargs?: {...}}
		var valueObject struct {
			Args   []string          `json:"args"`
			Kwargs map[string]string `json:"kwargs"`
		}
		if err := json.Unmarshal(value, &valueObject); err != nil {
			return false
		}

		var rawObj map[string]json.RawMessage
		_ = json.Unmarshal(value, &rawObj)

		if _, hasArgs := rawObj["args"]; hasArgs {
			if len(valueObject.Args) == 0 {
				if len(args) != 0 {
					return false
				}
			} else {
				for i, argGlob := range valueObject.Args {
					if i >= len(args) || !globMatches(argGlob, args[i]) {
						return false
					}
				}
			}
		}

		if _, hasKwargs := rawObj["kwargs"]; hasKwargs {
			if len(valueObject.Kwargs) == 0 {
				if len(kwargs) != 0 {
					return false
				}
			} else {
				for key, kwGlob := range valueObject.Kwargs {
					if callerValue, ok := kwargs[key]; ok {
						if !globMatches(kwGlob, callerValue) {
							return false
						}
					}
				}
			}
			return true
		}

		return true
	}
	return false
}

func evaluateTarget(targetSection json.RawMessage, target, fun string, args []string, kwargs map[string]string) bool {
	var asString string
	if err := json.Unmarshal(targetSection, &asString); err == nil {
		// A bare string at the top level is shorthand for
		// {"<current target>": ["<glob>"]} — it matches on fun
		// regardless of the actual target. This is the documented
		// "superuser-style shorthand" ambiguity, preserved verbatim.
		return globMatches(asString, fun)
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(targetSection, &asObject); err != nil || len(asObject) != 1 {
		return false
	}

	for key, value := range asObject {
		if !globMatches(key, target) {
			continue
		}
		var funSections []json.RawMessage
		if err := json.Unmarshal(value, &funSections); err != nil {
			return false
		}
		for _, funSection := range funSections {
			if evaluateFunction(funSection, fun, args, kwargs) {
				return true
			}
		}
		return false
	}
	return false
}

// Evaluate walks the rule document, returning true on the first matching
// top-level rule.
func Evaluate(permissions json.RawMessage, target, fun string, args []string, kwargs map[string]string) bool {
	var rules []json.RawMessage
	if err := json.Unmarshal(permissions, &rules); err != nil {
		return false
	}
	for _, rule := range rules {
		if evaluateTarget(rule, target, fun, args, kwargs) {
			return true
		}
	}
	return false
}

// HasResaltPermission checks permission p against the @resalt pseudo-target,
// falling back to the admin.superadmin shortcut: any user holding that
// permission is granted every @resalt-scoped permission.
func HasResaltPermission(permissions json.RawMessage, p string) bool {
	if Evaluate(permissions, ResaltTarget, p, nil, nil) {
		return true
	}
	return Evaluate(permissions, ResaltTarget, AdminSuperadmin, nil, nil)
}

// ConcatGroupPerms merges several group rule documents (each a serialised
// JSON array) into one combined rule document, the way a user's effective
// permissions are the array concatenation of every group they belong to.
func ConcatGroupPerms(groupPerms []string) string {
	combined := make([]json.RawMessage, 0)
	for _, gp := range groupPerms {
		trimmed := strings.TrimSpace(gp)
		if trimmed == "" {
			continue
		}
		var rules []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &rules); err != nil {
			continue
		}
		combined = append(combined, rules...)
	}
	out, err := json.Marshal(combined)
	if err != nil {
		return "[]"
	}
	return string(out)
}
