package report

import (
	"strings"
	"testing"
	"time"
)

func TestLookupUnknown(t *testing.T) {
	t.Parallel()
	if _, err := Lookup("nope"); err != ErrUnknownReport {
		t.Fatalf("err = %v, want ErrUnknownReport", err)
	}
}

func TestJQLClauses(t *testing.T) {
	t.Parallel()
	def, err := Lookup("jira_ops")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	r := Range{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC),
	}
	jql := def.JQL(r, []string{"Open", "In Progress"})

	for _, want := range []string{
		"project = OPS",
		`issuetype IN ("Task", "Bug")`,
		`status IN ("Open", "In Progress")`,
		`created >= "2026-01-01 00:00"`,
		`created <= "2026-01-31 23:59"`,
	} {
		if !strings.Contains(jql, want) {
			t.Fatalf("JQL missing %q:\n%s", want, jql)
		}
	}
}

func TestJQLNoOptionalClauses(t *testing.T) {
	t.Parallel()
	def, err := Lookup("jira_infosol")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	jql := def.JQL(Range{Start: time.Now(), End: time.Now()}, nil)
	if strings.Contains(jql, "issuetype") || strings.Contains(jql, "status IN") {
		t.Fatalf("unexpected optional clause in %q", jql)
	}
}

func TestFieldsDeduplicated(t *testing.T) {
	t.Parallel()
	for _, key := range Keys() {
		def, _ := Lookup(key)
		seen := map[string]bool{}
		for _, f := range def.Fields() {
			if seen[f] {
				t.Fatalf("%s: duplicate field %q", key, f)
			}
			seen[f] = true
		}
		// "key" lives on the issue itself, not under fields.
		if seen["key"] {
			t.Fatalf("%s: issue key leaked into fields list", key)
		}
	}
}
