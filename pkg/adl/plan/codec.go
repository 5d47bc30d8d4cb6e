package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// planPayload is the canonical wire form of a Plan.
type planPayload struct {
	Name                string  `json:"name,omitempty"`
	Target              string  `json:"target"`
	WorkflowConcurrency int     `json:"workflow_concurrency,omitempty"`
	RunConcurrency      int     `json:"run_concurrency,omitempty"`
	Nodes               []*Node `json:"nodes"`
}

// MarshalJSON encodes the plan canonically: nodes sorted by id, dependencies
// sorted, inputs sorted by name, map values with sorted keys.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planPayload{
		Name:                p.name,
		Target:              p.target,
		WorkflowConcurrency: p.workflowConcurrency,
		RunConcurrency:      p.runConcurrency,
		Nodes:               p.nodes,
	})
}

// UnmarshalJSON decodes a plan previously produced by MarshalJSON.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var payload planPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	decoded := newPlan(payload.Name, payload.Target, payload.Nodes)
	decoded.workflowConcurrency = payload.WorkflowConcurrency
	decoded.runConcurrency = payload.RunConcurrency
	*p = *decoded
	return nil
}

// Fingerprint returns the hex sha256 of the canonical encoding.
func (p *Plan) Fingerprint() (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
