package model

// ProposalStatus describes how well a work unit was staffed.
type ProposalStatus string

// Proposal statuses.
const (
	ProposalAssigned   ProposalStatus = "assigned"
	ProposalPartial    ProposalStatus = "partial"
	ProposalNoCapacity ProposalStatus = "no_capacity"
)

// ProposalSource records which step produced the team.
type ProposalSource string

// Proposal sources.
const (
	SourceExternal      ProposalSource = "external"
	SourceFallback      ProposalSource = "fallback"
	SourceDeterministic ProposalSource = "deterministic"
	SourceNone          ProposalSource = "none"
)

// TeamMember is one person's share of a work unit.
type TeamMember struct {
	PersonID       string  `json:"person_id"`
	Name           string  `json:"name,omitempty"`
	AllocatedHours float64 `json:"allocated_hours"`
}

// Proposal is the engine's answer for one work unit in one batch.
type Proposal struct {
	ID         string         `json:"id"`
	WorkUnitID string         `json:"work_unit_id"`
	Team       []TeamMember   `json:"team"`
	Reasoning  string         `json:"reasoning"`
	Status     ProposalStatus `json:"status"`
	Source     ProposalSource `json:"source"`
	Warning    string         `json:"warning,omitempty"`
}

// TotalHours sums the allocated hours of the team.
func (p Proposal) TotalHours() float64 {
	var total float64
	for _, m := range p.Team {
		total += m.AllocatedHours
	}
	return total
}

// Reassignment suggests a new owner for an at-risk task.
type Reassignment struct {
	TaskID           string  `json:"task_id"`
	SuggestedOwnerID string  `json:"suggested_owner_id"`
	Reasoning        string  `json:"reasoning"`
	BandwidthScore   float64 `json:"bandwidth_score"`
}
