package models

// CreateSessionRequest opens a session on a case
type CreateSessionRequest struct {
	CaseID string `json:"case_id"`
}

// StartSessionRequest starts an idle session
type StartSessionRequest struct {
	Mode Mode `json:"mode"`
}

// ApplyTreatmentRequest applies a treatment to a running session
type ApplyTreatmentRequest struct {
	TreatmentID string `json:"treatment_id"`
}

// DiagnoseRequest submits an answer to the diagnostic challenge
type DiagnoseRequest struct {
	OptionID string `json:"option_id"`
}

// HintResponse carries the next unmet goal
type HintResponse struct {
	Hint string `json:"hint"`
}

// CaseSummary is the catalog listing entry for a case
type CaseSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	HasChallenge bool     `json:"has_challenge"`
}

// TreatmentOption is a treatment as shown to a trainee, without its effects
type TreatmentOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CaseDetail is the trainee-facing view of a case. Effects and the diagnosis are withheld.
type CaseDetail struct {
	CaseSummary
	Parameters          []Parameter       `json:"parameters"`
	Treatments          []TreatmentOption `json:"treatments"`
	Goals               []Goal            `json:"goals"`
	EvaluationTickLimit int               `json:"evaluation_tick_limit,omitempty"`
}

// Summary builds the catalog entry for c
func (c *Case) Summary() CaseSummary {
	return CaseSummary{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Tags:         c.Tags,
		HasChallenge: c.Challenge != nil,
	}
}

// Detail builds the trainee-facing view of c
func (c *Case) Detail() CaseDetail {
	treatments := make([]TreatmentOption, 0, len(c.Treatments))
	for _, t := range c.Treatments {
		treatments = append(treatments, TreatmentOption{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	return CaseDetail{
		CaseSummary:         c.Summary(),
		Parameters:          c.Parameters,
		Treatments:          treatments,
		Goals:               c.Goals,
		EvaluationTickLimit: c.EvaluationTickLimit,
	}
}
