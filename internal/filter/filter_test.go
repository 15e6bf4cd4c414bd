package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/resalt-bridge/resalt/internal/model"
)

func strPtr(s string) *string { return &s }

func i32Ptr(n int32) *int32 { return &n }

func grainMinion(grains string) model.Minion {
	return model.Minion{ID: "m1", Grains: strPtr(grains)}
}

func grainFilter(field string, op model.Operand, value string) model.Filter {
	return model.Filter{FieldType: model.FieldTypeGrain, Field: field, Operand: op, Value: value}
}

func TestGrainJSONPathFilters(t *testing.T) {
	minion := grainMinion(`{"os":"Linux","pkgs":["a","b"],"cpus":8}`)

	tests := []struct {
		name   string
		filter model.Filter
		want   bool
	}{
		{"equals match", grainFilter("$.os", model.OperandEquals, "Linux"), true},
		{"contains miss", grainFilter("$.os", model.OperandContains, "Win"), false},
		{"array stringified contains", grainFilter("$.pkgs", model.OperandContains, "a"), true},
		{"array stringified equals", grainFilter("$.pkgs", model.OperandEquals, "a, b"), true},
		{"numeric gte", grainFilter("$.cpus", model.OperandGreaterThanOrEqual, "4"), true},
		{"numeric lte miss", grainFilter("$.cpus", model.OperandLessThanOrEqual, "4"), false},
		{"numeric against non-numeric fails", grainFilter("$.os", model.OperandGreaterThanOrEqual, "1"), false},
		{"missing path equals empty", grainFilter("$.nope", model.OperandEquals, ""), true},
		{"missing path notcontains empty fails", grainFilter("$.nope", model.OperandNotContains, ""), false},
		{"present notcontains empty fails too", grainFilter("$.os", model.OperandNotContains, ""), false},
		{"startswith", grainFilter("$.os", model.OperandStartsWith, "Lin"), true},
		{"endswith", grainFilter("$.os", model.OperandEndsWith, "ux"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(minion, []model.Filter{tc.filter}))
		})
	}
}

func TestGrainObjectAndNullRendering(t *testing.T) {
	minion := grainMinion(`{"nested":{"a":1},"empty":null}`)
	assert.True(t, Matches(minion, []model.Filter{grainFilter("$.nested", model.OperandEquals, "<OBJECT>")}))
	assert.True(t, Matches(minion, []model.Filter{grainFilter("$.empty", model.OperandEquals, "null")}))
}

func TestObjectFieldFilters(t *testing.T) {
	lastSeen, _ := time.Parse("2006-01-02 15:04:05", "2024-06-01 10:30:00")
	minion := model.Minion{
		ID:                "web-01",
		LastSeen:          lastSeen,
		OSType:            strPtr("Debian 12"),
		ConformitySuccess: i32Ptr(10),
	}

	object := func(field string, op model.Operand, value string) model.Filter {
		return model.Filter{FieldType: model.FieldTypeObject, Field: field, Operand: op, Value: value}
	}

	assert.True(t, Matches(minion, []model.Filter{object("id", model.OperandStartsWith, "web")}))
	assert.True(t, Matches(minion, []model.Filter{object("os_type", model.OperandContains, "Debian")}))
	assert.True(t, Matches(minion, []model.Filter{object("last_seen", model.OperandGreaterThanOrEqual, "2024-01-01 00:00:00")}))
	assert.False(t, Matches(minion, []model.Filter{object("last_seen", model.OperandLessThanOrEqual, "2024-01-01 00:00:00")}))
	assert.True(t, Matches(minion, []model.Filter{object("conformity_success", model.OperandGreaterThanOrEqual, "5")}))
	assert.False(t, Matches(minion, []model.Filter{object("conformity_error", model.OperandEquals, "0")}), "null count fails numeric compare")
	assert.False(t, Matches(minion, []model.Filter{object("bogus_field", model.OperandEquals, "x")}), "unknown field fails without crashing")
}

func TestObjectOSTypeNullComparesAsEmpty(t *testing.T) {
	minion := model.Minion{ID: "m1"}
	f := model.Filter{FieldType: model.FieldTypeObject, Field: "os_type", Operand: model.OperandEquals, Value: ""}
	assert.True(t, Matches(minion, []model.Filter{f}))
}

func TestPackageFilters(t *testing.T) {
	minion := model.Minion{ID: "m1", Pkgs: strPtr(`{"nginx":"1.24.0","openssl":"3.0.2"}`)}

	pkg := func(name string, op model.Operand, value string) model.Filter {
		return model.Filter{FieldType: model.FieldTypePackage, Field: name, Operand: op, Value: value}
	}

	assert.True(t, Matches(minion, []model.Filter{pkg("nginx", model.OperandContains, "")}), "empty contains tests presence")
	assert.False(t, Matches(minion, []model.Filter{pkg("apache2", model.OperandContains, "")}))
	assert.True(t, Matches(minion, []model.Filter{pkg("apache2", model.OperandNotContains, "")}), "empty notcontains tests absence")
	assert.True(t, Matches(minion, []model.Filter{pkg("nginx", model.OperandEquals, "1.24.0")}))
	assert.True(t, Matches(minion, []model.Filter{pkg("nginx", model.OperandGreaterThanOrEqual, "1.9.9")}), "semver, not lexicographic")
	assert.True(t, Matches(minion, []model.Filter{pkg("nginx", model.OperandLessThanOrEqual, "1.25.0")}))
	assert.False(t, Matches(minion, []model.Filter{pkg("nginx", model.OperandGreaterThanOrEqual, "not-a-version")}), "unparseable side fails closed")
	assert.True(t, Matches(minion, []model.Filter{pkg("openssl", model.OperandStartsWith, "3.")}))
}

func TestFilterMinionsAndSemantics(t *testing.T) {
	linux := grainMinion(`{"os":"Linux"}`)
	linux.ID = "a"
	windows := grainMinion(`{"os":"Windows"}`)
	windows.ID = "b"

	filters := []model.Filter{
		grainFilter("$.os", model.OperandEquals, "Linux"),
		{FieldType: model.FieldTypeObject, Field: "id", Operand: model.OperandEquals, Value: "a"},
	}
	out := FilterMinions([]model.Minion{linux, windows}, filters)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)

	// Every retained minion satisfies every filter individually.
	for _, m := range out {
		for _, f := range filters {
			assert.True(t, Matches(m, []model.Filter{f}))
		}
	}

	assert.Len(t, FilterMinions([]model.Minion{linux, windows}, nil), 2, "empty filter list retains everything")

	none := []model.Filter{{FieldType: model.FieldTypeNone, Field: "ignored", Operand: model.OperandEquals, Value: "ignored"}}
	assert.Len(t, FilterMinions([]model.Minion{linux, windows}, none), 2, "None filters always pass")
}
