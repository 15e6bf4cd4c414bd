// Package filter evaluates minion and job filter lists against the
// materialised model types. Three field types are supported: Object (plain
// struct fields), Grain (JSONPath into the minion's grains document), and
// Package (installed package version comparison).
package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/PaesslerAG/jsonpath"

	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
)

const timestampLayout = "2006-01-02 15:04:05"

func stringLogic(operand model.Operand, a, b string) bool {
	switch operand {
	case model.OperandContains:
		return strings.Contains(a, b)
	case model.OperandNotContains:
		return !strings.Contains(a, b)
	case model.OperandEquals:
		return a == b
	case model.OperandNotEquals:
		return a != b
	case model.OperandStartsWith:
		return strings.HasPrefix(a, b)
	case model.OperandEndsWith:
		return strings.HasSuffix(a, b)
	case model.OperandGreaterThanOrEqual:
		return a >= b
	case model.OperandLessThanOrEqual:
		return a <= b
	default:
		return false
	}
}

func int32Logic(value int32, filterValue string, operand model.Operand) bool {
	parsed, err := strconv.ParseInt(filterValue, 10, 32)
	if err != nil {
		return false
	}
	want := int32(parsed)
	switch operand {
	case model.OperandEquals:
		return value == want
	case model.OperandNotEquals:
		return value != want
	case model.OperandGreaterThanOrEqual:
		return value >= want
	case model.OperandLessThanOrEqual:
		return value <= want
	default:
		return false
	}
}

func timestampLogic(minionTime, filterTime time.Time, operand model.Operand) bool {
	minionStr := minionTime.UTC().Format(timestampLayout)
	filterStr := filterTime.UTC().Format(timestampLayout)
	switch operand {
	case model.OperandContains:
		return strings.Contains(minionStr, filterStr)
	case model.OperandNotContains:
		return !strings.Contains(minionStr, filterStr)
	case model.OperandStartsWith:
		return strings.HasPrefix(minionStr, filterStr)
	case model.OperandEndsWith:
		return strings.HasSuffix(minionStr, filterStr)
	case model.OperandEquals:
		return minionTime.Equal(filterTime)
	case model.OperandNotEquals:
		return !minionTime.Equal(filterTime)
	case model.OperandGreaterThanOrEqual:
		return !minionTime.Before(filterTime)
	case model.OperandLessThanOrEqual:
		return !minionTime.After(filterTime)
	default:
		return false
	}
}

// valueToSimpleStr stringifies a decoded JSON value the way a single
// JSONPath match is rendered for string comparison: arrays join their
// elements with ", ", objects render as a fixed placeholder.
func valueToSimpleStr(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = valueToSimpleStr(e)
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		return "<OBJECT>"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func matchObject(minion model.Minion, f model.Filter) bool {
	switch f.Field {
	case "id":
		return stringLogic(f.Operand, minion.ID, f.Value)
	case "os_type":
		value := ""
		if minion.OSType != nil {
			value = *minion.OSType
		}
		return stringLogic(f.Operand, value, f.Value)
	case "last_seen":
		filterTime, err := time.Parse(timestampLayout, f.Value)
		if err != nil {
			filterTime = time.Time{}
		}
		return timestampLogic(minion.LastSeen, filterTime, f.Operand)
	case "conformity_success":
		if minion.ConformitySuccess == nil {
			return false
		}
		return int32Logic(*minion.ConformitySuccess, f.Value, f.Operand)
	case "conformity_incorrect":
		if minion.ConformityIncorrect == nil {
			return false
		}
		return int32Logic(*minion.ConformityIncorrect, f.Value, f.Operand)
	case "conformity_error":
		if minion.ConformityError == nil {
			return false
		}
		return int32Logic(*minion.ConformityError, f.Value, f.Operand)
	default:
		logger.Storage().Warn().Str("field", f.Field).Msg("filtering on unknown object field")
		return false
	}
}

func matchGrain(minion model.Minion, f model.Filter) bool {
	raw := ""
	if minion.Grains != nil {
		raw = *minion.Grains
	}
	var grains interface{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &grains); err != nil {
			grains = map[string]interface{}{}
		}
	} else {
		grains = map[string]interface{}{}
	}

	result, err := jsonpath.Get(f.Field, grains)
	var selected []interface{}
	if err != nil {
		selected = nil
	} else if arr, ok := result.([]interface{}); ok {
		selected = arr
	} else {
		selected = []interface{}{result}
	}

	var selectedStr string
	switch len(selected) {
	case 0:
		if f.Operand == model.OperandNotContains && f.Value == "" {
			return false
		}
		selectedStr = ""
	case 1:
		selectedStr = valueToSimpleStr(selected[0])
	default:
		parts := make([]string, len(selected))
		for i, s := range selected {
			parts[i] = valueToSimpleStr(s)
		}
		selectedStr = strings.Join(parts, ", ")
	}

	switch f.Operand {
	case model.OperandContains:
		return strings.Contains(selectedStr, f.Value)
	case model.OperandNotContains:
		return !strings.Contains(selectedStr, f.Value)
	case model.OperandEquals:
		return selectedStr == f.Value
	case model.OperandNotEquals:
		return selectedStr != f.Value
	case model.OperandStartsWith:
		return strings.HasPrefix(selectedStr, f.Value)
	case model.OperandEndsWith:
		return strings.HasSuffix(selectedStr, f.Value)
	case model.OperandGreaterThanOrEqual, model.OperandLessThanOrEqual:
		selectedFloat, err1 := strconv.ParseFloat(selectedStr, 64)
		filterFloat, err2 := strconv.ParseFloat(f.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if f.Operand == model.OperandGreaterThanOrEqual {
			return selectedFloat >= filterFloat
		}
		return selectedFloat <= filterFloat
	default:
		return false
	}
}

func matchPackage(minion model.Minion, f model.Filter) bool {
	raw := ""
	if minion.Pkgs != nil {
		raw = *minion.Pkgs
	}
	var packages map[string]interface{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &packages)
	}

	var version *string
	if v, ok := packages[f.Field]; ok {
		if s, ok := v.(string); ok {
			version = &s
		}
	}

	switch f.Operand {
	case model.OperandContains:
		if f.Value == "" {
			return version != nil
		}
		return version != nil && strings.Contains(*version, f.Value)
	case model.OperandNotContains:
		if f.Value == "" {
			return version == nil
		}
		return version == nil || !strings.Contains(*version, f.Value)
	case model.OperandEquals:
		return version != nil && *version == f.Value
	case model.OperandNotEquals:
		return version != nil && *version != f.Value
	case model.OperandStartsWith:
		return version != nil && strings.HasPrefix(*version, f.Value)
	case model.OperandEndsWith:
		return version != nil && strings.HasSuffix(*version, f.Value)
	case model.OperandGreaterThanOrEqual:
		if version == nil {
			return false
		}
		cmp, ok := semverCompare(*version, f.Value)
		return ok && cmp >= 0
	case model.OperandLessThanOrEqual:
		if version == nil {
			return false
		}
		cmp, ok := semverCompare(*version, f.Value)
		return ok && cmp <= 0
	default:
		return false
	}
}

// semverCompare compares two loosely-formatted package version strings,
// returning a value <0, 0, or >0 the way semver.Version.Compare does. ok is
// false if either side failed to parse as a version, in which case the
// caller's >=/<= check should fail closed instead of guessing.
func semverCompare(a, b string) (cmp int, ok bool) {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr != nil || berr != nil {
		return 0, false
	}
	return av.Compare(bv), true
}

// Matches reports whether minion satisfies every filter in the list (an
// empty list always matches).
func Matches(minion model.Minion, filters []model.Filter) bool {
	for _, f := range filters {
		switch f.FieldType {
		case model.FieldTypeNone:
			continue
		case model.FieldTypeObject:
			if !matchObject(minion, f) {
				return false
			}
		case model.FieldTypeGrain:
			if !matchGrain(minion, f) {
				return false
			}
		case model.FieldTypePackage:
			if !matchPackage(minion, f) {
				return false
			}
		}
	}
	return true
}

// FilterMinions returns the subset of minions matching every filter.
func FilterMinions(minions []model.Minion, filters []model.Filter) []model.Minion {
	out := make([]model.Minion, 0, len(minions))
	for _, m := range minions {
		if Matches(m, filters) {
			out = append(out, m)
		}
	}
	return out
}
