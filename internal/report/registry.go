// Package report defines the fixed registry of supported extraction kinds
// and the date-range resolution rules shared by ad hoc and scheduled runs.
package report

import (
	"errors"
	"sort"
	"strings"
)

var ErrUnknownReport = errors.New("unknown report type")

// Column maps a CSV header to a dotted path into the issue JSON returned by
// the search API (e.g. "key", "fields.status.name").
type Column struct {
	Header string
	Path   string
}

// Definition describes one report type. The supported kinds differ only in
// the query they issue and the columns they emit; everything else about an
// extraction run is shared.
type Definition struct {
	Key      string
	Display  string
	Filename string // download filename presented to the user

	// Project and IssueTypes parameterize the JQL search clause.
	Project    string
	IssueTypes []string

	Columns []Column
}

var registry = map[string]Definition{
	"jira_infosol": {
		Key:      "jira_infosol",
		Display:  "Infosol",
		Filename: "JIRA-INFOSOL-Report.csv",
		Project:  "INFOSOL",
		Columns:  standardColumns,
	},
	"jira_ops": {
		Key:        "jira_ops",
		Display:    "OPS-Task-Bug",
		Filename:   "JIRA-OPS-Task-Bug-Report.csv",
		Project:    "OPS",
		IssueTypes: []string{"Task", "Bug"},
		Columns:    standardColumns,
	},
	"jira_ops_cr": {
		Key:        "jira_ops_cr",
		Display:    "OPS-CR",
		Filename:   "JIRA-OPS-CR-Report.csv",
		Project:    "OPS",
		IssueTypes: []string{"Change Request"},
		Columns: append(standardColumns[:len(standardColumns):len(standardColumns)],
			Column{Header: "Change Start", Path: "fields.customfield_10050"},
			Column{Header: "Change End", Path: "fields.customfield_10051"},
		),
	},
	"jira_asd_incident": {
		Key:        "jira_asd_incident",
		Display:    "ASD-Incident",
		Filename:   "JIRA-ASD-INCIDENT-Report.csv",
		Project:    "ASD",
		IssueTypes: []string{"Incident"},
		Columns:    standardColumns,
	},
	"jira_asd_pm": {
		Key:        "jira_asd_pm",
		Display:    "ASD-PM",
		Filename:   "JIRA-ASD-PM-Report.csv",
		Project:    "ASD",
		IssueTypes: []string{"Preventive Maintenance"},
		Columns:    standardColumns,
	},
	"jsm_incident": {
		Key:        "jsm_incident",
		Display:    "JSM-Incident",
		Filename:   "JSM-INCIDENT-Report.csv",
		Project:    "JSM",
		IssueTypes: []string{"[System] Incident"},
		Columns: append(standardColumns[:len(standardColumns):len(standardColumns)],
			Column{Header: "Request Type", Path: "fields.customfield_10010.requestType.name"},
		),
	},
}

var standardColumns = []Column{
	{Header: "Key", Path: "key"},
	{Header: "Summary", Path: "fields.summary"},
	{Header: "Issue Type", Path: "fields.issuetype.name"},
	{Header: "Status", Path: "fields.status.name"},
	{Header: "Priority", Path: "fields.priority.name"},
	{Header: "Assignee", Path: "fields.assignee.displayName"},
	{Header: "Reporter", Path: "fields.reporter.displayName"},
	{Header: "Created", Path: "fields.created"},
	{Header: "Updated", Path: "fields.updated"},
	{Header: "Resolved", Path: "fields.resolutiondate"},
}

// Lookup returns the definition for key, or ErrUnknownReport.
func Lookup(key string) (Definition, error) {
	d, ok := registry[strings.TrimSpace(key)]
	if !ok {
		return Definition{}, ErrUnknownReport
	}
	return d, nil
}

// Keys returns the registered report keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// JQL builds the search clause for the definition over the given resolved
// range and optional status filter.
func (d Definition) JQL(r Range, statuses []string) string {
	var b strings.Builder
	b.WriteString("project = ")
	b.WriteString(d.Project)
	if len(d.IssueTypes) > 0 {
		b.WriteString(" AND issuetype IN (")
		for i, it := range d.IssueTypes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(`"`)
			b.WriteString(it)
			b.WriteString(`"`)
		}
		b.WriteString(")")
	}
	if len(statuses) > 0 {
		b.WriteString(" AND status IN (")
		for i, st := range statuses {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(`"`)
			b.WriteString(strings.TrimSpace(st))
			b.WriteString(`"`)
		}
		b.WriteString(")")
	}
	b.WriteString(` AND created >= "`)
	b.WriteString(r.Start.Format("2006-01-02 15:04"))
	b.WriteString(`" AND created <= "`)
	b.WriteString(r.End.Format("2006-01-02 15:04"))
	b.WriteString(`" ORDER BY created ASC`)
	return b.String()
}

// Fields returns the API field names the definition needs, derived from its
// column paths (the segment after "fields.").
func (d Definition) Fields() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		rest, ok := strings.CutPrefix(c.Path, "fields.")
		if !ok {
			continue
		}
		name := rest
		if i := strings.IndexByte(rest, '.'); i >= 0 {
			name = rest[:i]
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
