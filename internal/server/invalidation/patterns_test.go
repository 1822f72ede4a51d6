package invalidation

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPatterns_CardOnlyFallsBackToWildcards(t *testing.T) {
	got, rejected := BuildPatterns(Refs{CardID: "c1"})
	assert.Empty(t, rejected)
	assert.ElementsMatch(t, []string{
		"board:*:card:c1",
		"board:*:card:c1:*",
		"board:*:list:*:cards*",
		"board:*:summary*",
		"board:*:lists*",
		"boards:user:*",
		"analytics:*",
		"calendar:*",
		"sheet:*",
	}, got)
}

func TestBuildPatterns_CardWithAncestors(t *testing.T) {
	got, _ := BuildPatterns(Refs{BoardID: "b1", ListID: "l1", CardID: "c1"})

	for _, want := range []string{
		"board:b1:card:c1",
		"board:b1:card:c1:*",
		"board:b1:list:l1:cards*",
		"board:b1:list:l1",
		"board:b1:list:l1:*",
		"board:b1:summary*",
		"board:b1:lists*",
		"analytics:*",
		"calendar:*",
		"sheet:*",
	} {
		assert.Contains(t, got, want)
	}
	for _, p := range got {
		assert.NotEqual(t, "board:b1:card:*", p, "sibling cards must survive")
		assert.False(t, strings.HasPrefix(p, "board:*"), "known board must not widen: %s", p)
	}
}

func TestBuildPatterns_Subtask(t *testing.T) {
	got, _ := BuildPatterns(Refs{BoardID: "b1", CardID: "c1", SubtaskNanoID: "V1StGXR8_Z5jdHi6B-myT"})
	assert.Contains(t, got, "subtask:nano:V1StGXR8_Z5jdHi6B-myT")
	assert.Contains(t, got, "board:b1:card:c1:subtasks*")
	assert.Contains(t, got, "board:b1:card:c1")
	assert.Contains(t, got, "board:b1:summary*")

	got, _ = BuildPatterns(Refs{SubtaskID: "s1"})
	assert.Contains(t, got, "subtask:s1")
	assert.Contains(t, got, "subtask:s1:*")
	assert.Contains(t, got, "board:*:card:*:subtasks*")
}

func TestBuildPatterns_BoardOnly(t *testing.T) {
	got, _ := BuildPatterns(Refs{BoardID: "b1"})
	assert.ElementsMatch(t, []string{
		"board:b1:summary*",
		"board:b1:lists*",
		"boards:user:*",
		"analytics:*",
		"calendar:*",
		"sheet:*",
	}, got)
}

func TestBuildPatterns_Sales(t *testing.T) {
	got, _ := BuildPatterns(Refs{SalesRowID: "r1"})
	assert.ElementsMatch(t, []string{"sales:row:r1", "sales:row:r1:*", "sales:rows*", "sales:analytics*", "sheet:*"}, got)

	got, _ = BuildPatterns(Refs{SalesRows: true})
	assert.ElementsMatch(t, []string{"sales:row:*", "sales:rows*", "sales:analytics*", "sheet:*"}, got)

	got, _ = BuildPatterns(Refs{SalesColumnID: "status"})
	assert.ElementsMatch(t, []string{"sales:columns*", "sales:dropdown:status", "sales:dropdown:status:*", "sales:rows*"}, got)
}

func TestBuildPatterns_OtherFeatures(t *testing.T) {
	tests := []struct {
		name string
		refs Refs
		want []string
	}{
		{"announcement", Refs{AnnouncementID: "a1"}, []string{"announcement:a1", "announcement:a1:*", "announcements:*"}},
		{"department", Refs{DepartmentID: "d1"}, []string{"department:d1", "department:d1:*", "departments:*"}},
		{"user", Refs{UserID: "u1"}, []string{"user:u1", "user:u1:*", "boards:user:u1", "boards:user:u1:*"}},
		{"finance period", Refs{Finance: true, FinancePeriod: "2024-05"}, []string{"finance:2024-05", "finance:2024-05:*", "finance:summary*"}},
		{"finance all", Refs{Finance: true}, []string{"finance:*"}},
		{"nothing", Refs{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := BuildPatterns(tt.refs)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestBuildPatterns_Deduplicates(t *testing.T) {
	got, _ := BuildPatterns(Refs{BoardID: "b1", CardID: "c1", SalesRowID: "r1"})
	seen := map[string]int{}
	for _, p := range got {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, p)
	}
	assert.Contains(t, got, "sheet:*")
}

func TestBuildPatterns_RejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		refs  Refs
		field string
	}{
		{"glob in card id", Refs{CardID: "*"}, "cardId"},
		{"serialized object", Refs{SalesRowID: "[object Object]"}, "salesRowId"},
		{"oversized", Refs{DepartmentID: strings.Repeat("a", 65)}, "departmentId"},
		{"colon", Refs{UserID: "u1:admin"}, "userId"},
		{"bad period keeps finance narrow", Refs{Finance: true, FinancePeriod: "2024/05"}, "financePeriod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rejected := BuildPatterns(tt.refs)
			assert.Empty(t, got)
			if assert.Len(t, rejected, 1) {
				assert.Equal(t, tt.field, rejected[0].Field)
				assert.LessOrEqual(t, len(rejected[0].Value), maxIDLength+3)
			}
		})
	}
}

func TestBuildPatterns_TrimsWhitespace(t *testing.T) {
	got, rejected := BuildPatterns(Refs{AnnouncementID: "  a1 "})
	assert.Empty(t, rejected)
	assert.Contains(t, got, "announcement:a1")
}

func TestBuildPatterns_RejectedBoardDropsBoardPatterns(t *testing.T) {
	got, rejected := BuildPatterns(Refs{BoardID: `{"a":1}`, CardID: "c1"})

	if assert.Len(t, rejected, 1) {
		assert.Equal(t, "boardId", rejected[0].Field)
	}
	for _, p := range got {
		assert.False(t, strings.HasPrefix(p, "board:"), "pattern under a rejected board: %s", p)
	}
	assert.Contains(t, got, "boards:user:*")
	assert.Contains(t, got, "analytics:*")
}

func TestBuildPatterns_RejectedListKeepsCardKeys(t *testing.T) {
	got, rejected := BuildPatterns(Refs{BoardID: "b1", ListID: "l*", CardID: "c1"})

	assert.Len(t, rejected, 1)
	assert.Contains(t, got, "board:b1:card:c1")
	assert.Contains(t, got, "board:b1:summary*")
	for _, p := range got {
		assert.False(t, strings.Contains(p, ":list:"), "pattern under a rejected list: %s", p)
	}
}

func TestBuildPatterns_RejectedCardDropsSubtaskFamily(t *testing.T) {
	got, _ := BuildPatterns(Refs{BoardID: "b1", CardID: "c 1", SubtaskID: "s1"})

	assert.Contains(t, got, "subtask:s1")
	for _, p := range got {
		assert.False(t, strings.Contains(p, ":card:"), "pattern under a rejected card: %s", p)
	}
}

func TestBuildPatterns_SiblingIdsSurvive(t *testing.T) {
	tests := []struct {
		name    string
		refs    Refs
		purged  []string
		sibling string
	}{
		{"card", Refs{BoardID: "b", CardID: "1"}, []string{"board:b:card:1", "board:b:card:1:activity:3"}, "board:b:card:12"},
		{"sales row", Refs{SalesRowID: "7"}, []string{"sales:row:7", "sales:row:7:history"}, "sales:row:77"},
		{"subtask", Refs{SubtaskID: "s1"}, []string{"subtask:s1"}, "subtask:s10"},
		{"announcement", Refs{AnnouncementID: "a1"}, []string{"announcement:a1"}, "announcement:a1b"},
		{"user boards", Refs{UserID: "u1"}, []string{"boards:user:u1"}, "boards:user:u10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := BuildPatterns(tt.refs)
			for _, key := range tt.purged {
				assert.True(t, anyMatch(got, key), "%s should be purged", key)
			}
			assert.False(t, anyMatch(got, tt.sibling), "%s should survive", tt.sibling)
		})
	}
}

// anyMatch reports whether a key matches one of the patterns. Only "*" is
// used in patterns, and like Redis MATCH it spans colons.
func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		re := "^" + strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, ".*") + "$"
		if regexp.MustCompile(re).MatchString(key) {
			return true
		}
	}
	return false
}
