// Package report turns the AppsFlyer partners CSV into the fixed table that is
// loaded into the warehouse.
package report

import "github.com/samber/lo"

// FieldType is a warehouse column type. Values match BigQuery type names.
type FieldType string

const (
	TypeDate    FieldType = "DATE"
	TypeString  FieldType = "STRING"
	TypeInteger FieldType = "INTEGER"
	TypeFloat   FieldType = "FLOAT"
)

// Column pairs a feed header with its warehouse column.
type Column struct {
	Source string
	Name   string
	Type   FieldType
}

// Feed headers the normalizer writes to.
const (
	HeaderDate      = "Date"
	HeaderInstalls  = "Installs"
	HeaderTotalCost = "Total Cost"
	HeaderSource    = "source"

	HeaderDecisionUsers      = "decision (Unique users)"
	HeaderDecisionEvents     = "decision (Event counter)"
	HeaderLoanDecisionUsers  = "loan decision delivered (Unique users)"
	HeaderLoanDecisionEvents = "loan decision delivered (Event counter)"
)

// Values of the source column.
const (
	SourceAttribution   = "attr"
	SourceReattribution = "reattr"
)

// NumColumns is the width of the loaded table.
const NumColumns = 17

// Schema is the ordered column contract shared by the normalizer and every
// warehouse backend.
var Schema = [NumColumns]Column{
	{HeaderDate, "Date", TypeDate},
	{"Agency/PMD (af_prt)", "Agency_PMD__af_prt_", TypeString},
	{"Media Source (pid)", "Media_Source__pid_", TypeString},
	{"Campaign (c)", "Campaign__c_", TypeString},
	{HeaderInstalls, "Installs", TypeInteger},
	{HeaderTotalCost, "Total_Cost", TypeFloat},
	{"approve (Unique users)", "approve__Unique_users_", TypeInteger},
	{"approve (Event counter)", "approve__Event_counter_", TypeInteger},
	{HeaderDecisionUsers, "decision__Unique_users_", TypeInteger},
	{HeaderDecisionEvents, "decision__Event_counter_", TypeInteger},
	{"loandecisiondelivered (Unique users)", "loandecisiondelivered__Unique_users_", TypeInteger},
	{"loandecisiondelivered (Event counter)", "loandecisiondelivered__Event_counter_", TypeInteger},
	{HeaderLoanDecisionUsers, "loan_decision_delivered__Unique_users_", TypeInteger},
	{HeaderLoanDecisionEvents, "loan_decision_delivered__Event_counter_", TypeInteger},
	{"signup (Unique users)", "signup__Unique_users_", TypeInteger},
	{"signup (Event counter)", "signup__Event_counter_", TypeInteger},
	{HeaderSource, "source", TypeString},
}

// synthesized columns are absent from the feed and always loaded as zero.
var synthesized = []string{
	HeaderDecisionEvents,
	HeaderDecisionUsers,
	HeaderLoanDecisionUsers,
	HeaderLoanDecisionEvents,
}

// ColumnNames returns the warehouse column names in load order.
func ColumnNames() []string {
	return lo.Map(Schema[:], func(c Column, _ int) string { return c.Name })
}

// ColumnIndex returns the position of the warehouse column name, or -1.
func ColumnIndex(name string) int {
	_, i, ok := lo.FindIndexOf(Schema[:], func(c Column) bool { return c.Name == name })
	if !ok {
		return -1
	}
	return i
}
