package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/types"
)

// Step is one state of the per-client pipeline
type Step string

const (
	StepDiscover         Step = "DISCOVER"
	StepStackUpsert      Step = "STACK_UPSERT"
	StepPolicyUpsert     Step = "POLICY_UPSERT"
	StepTokenUpsert      Step = "TOKEN_UPSERT"
	StepDatasourceUpsert Step = "DATASOURCE_UPSERT"
	StepFolderUpsert     Step = "FOLDER_UPSERT"
	StepTeamUpsert       Step = "TEAM_UPSERT"
	StepDone             Step = "DONE"
)

// ErrMainStackMissing aborts a run before any client is attempted.
var ErrMainStackMissing = errors.New("main stack not found")

// StepError names the client and pipeline step where a run aborted.
// Client is empty for failures before the client loop.
type StepError struct {
	Client string
	Step   Step
	Err    error
}

func (e *StepError) Error() string {
	if e.Client == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("client %q: %s: %v", e.Client, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Discoverer returns the clients reporting into the main stack, keyed by
// the primary discovery label.
type Discoverer interface {
	Clients(ctx context.Context) (map[string]types.Client, error)
}

// DiscovererFactory builds a discoverer for the main stack's metrics endpoint.
type DiscovererFactory func(main types.Stack) (Discoverer, error)

// GrafanaConnector returns the Grafana API of a stack.
type GrafanaConnector func(stackURL string) (GrafanaAPI, error)

// ClientResult is what the pipeline produced for one client. The token
// secret is deliberately absent.
type ClientResult struct {
	Client         types.Client `json:"client"`
	Slug           string       `json:"slug"`
	StackID        int64        `json:"stack_id"`
	StackURL       string       `json:"stack_url"`
	AccessPolicyID string       `json:"access_policy_id"`
	TokenID        string       `json:"token_id"`
	TokenExpiresAt time.Time    `json:"token_expires_at"`
	DatasourceUID  string       `json:"datasource_uid"`
	FolderUID      string       `json:"folder_uid,omitempty"`
	TeamID         int64        `json:"team_id,omitempty"`
}

// RunResult summarizes one provisioning run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Discovered  int            `json:"discovered"`
	Selected    []types.Client `json:"selected"`
	Provisioned []ClientResult `json:"provisioned"`

	// Actions counts successful writes per family and action.
	Actions map[string]map[reconciler.Action]int `json:"actions"`
	Success bool                                 `json:"success"`
	Error   string                               `json:"error,omitempty"`
}

func (r *RunResult) countWrites(writes []reconciler.Write) {
	for _, w := range writes {
		if w.Error != "" {
			continue
		}
		if r.Actions[w.Family] == nil {
			r.Actions[w.Family] = map[reconciler.Action]int{}
		}
		r.Actions[w.Family][w.Action]++
	}
}

// TotalWrites returns the number of successful remote writes of the run.
func (r *RunResult) TotalWrites() int {
	n := 0
	for _, byAction := range r.Actions {
		for _, c := range byAction {
			n += c
		}
	}
	return n
}

// Selection is the outcome of discovery and filtering.
type Selection struct {
	MainStack  types.Stack    `json:"main_stack"`
	Discovered int            `json:"discovered"`
	Selected   []types.Client `json:"selected"`
}

// ClientPlan is what a run would do for one client.
type ClientPlan struct {
	Client types.Client      `json:"client"`
	Slug   string            `json:"slug"`
	Steps  []reconciler.Plan `json:"steps"`
}

// PlanResult is the outcome of a dry run.
type PlanResult struct {
	Discovered int          `json:"discovered"`
	Clients    []ClientPlan `json:"clients"`
}
