package orchestrator

import (
	"context"
	"fmt"

	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/types"
)

// Plan runs discovery and selection, then reports what Run would write
// for each client. Nothing is written. Identifiers produced by earlier
// steps (policy id, token secret) are unknown, so later steps are planned
// against the entities that exist today.
func (o *Orchestrator) Plan(ctx context.Context) (*PlanResult, error) {
	engine := reconciler.NewEngine(
		reconciler.WithLogger(o.base),
		reconciler.WithTracer(o.tracer),
	)

	main, stacks, discovered, selected, err := o.selectClients(ctx)
	if err != nil {
		return nil, &StepError{Step: StepDiscover, Err: err}
	}

	result := &PlanResult{Discovered: discovered}
	for _, c := range selected {
		cp, err := o.planClient(ctx, engine, main, stacks, c)
		if err != nil {
			return result, err
		}
		result.Clients = append(result.Clients, cp)
	}
	return result, nil
}

func (o *Orchestrator) planClient(ctx context.Context, engine *reconciler.Engine, main types.Stack, stacks []types.Stack, c types.Client) (ClientPlan, error) {
	slug := types.Slug(o.settings.SlugPrefix, c.Name)
	env := o.settings.EnvironmentValue
	cp := ClientPlan{Client: c, Slug: slug}

	fail := func(step Step, err error) (ClientPlan, error) {
		return cp, &StepError{Client: c.Name, Step: step, Err: err}
	}

	p, err := reconciler.PlanUpsert(ctx, engine, StackFamily(o.cloud), StackSpecFor(c, slug, env, main))
	if err != nil {
		return fail(StepStackUpsert, err)
	}
	cp.Steps = append(cp.Steps, p)

	stack, exists := types.FindStack(stacks, c.Name)
	if !exists {
		stack = types.Stack{Name: c.Name, Slug: slug, RegionSlug: main.RegionSlug}
	}

	policySpec := AccessPolicySpecFor(c, slug, env, main, stack)
	p, err = reconciler.PlanUpsert(ctx, engine, AccessPolicyFamily(o.cloud), policySpec)
	if err != nil {
		return fail(StepPolicyUpsert, err)
	}
	cp.Steps = append(cp.Steps, p)

	tokenSpec := TokenSpecFor(c, slug, "", stack.RegionSlug, o.now().Add(o.settings.TokenTTL))
	p, err = reconciler.PlanUpsert(ctx, engine, TokenFamily(o.cloud, o.settings.ReplaceTokens), tokenSpec)
	if err != nil {
		return fail(StepTokenUpsert, err)
	}
	cp.Steps = append(cp.Steps, p)

	dsSpec := DatasourceSpecFor(c, slug, main, "", o.settings.DatasourceIsDefault)
	folderSpec := FolderSpecFor(c, slug)
	teamSpec := TeamSpecFor(c)
	roleSpec := ViewerRoleSpecFor(c, slug)

	// a stack that does not exist yet has nothing on it
	if !exists {
		cp.Steps = append(cp.Steps, reconciler.Plan{Family: FamilyDatasource, Key: dsSpec.Name, Action: reconciler.ActionCreate})
		if o.settings.Folders {
			cp.Steps = append(cp.Steps, reconciler.Plan{Family: FamilyFolder, Key: folderSpec.UID, Action: reconciler.ActionCreate})
		}
		if o.settings.Teams {
			cp.Steps = append(cp.Steps,
				reconciler.Plan{Family: FamilyTeam, Key: teamSpec.Name, Action: reconciler.ActionCreate},
				reconciler.Plan{Family: FamilyRole, Key: roleSpec.UID, Action: reconciler.ActionCreate},
			)
		}
		return cp, nil
	}

	gapi, err := o.connect(stack.URL)
	if err != nil {
		return fail(StepDatasourceUpsert, fmt.Errorf("connect to stack %s: %w", stack.Slug, err))
	}

	p, err = reconciler.PlanUpsert(ctx, engine, DatasourceFamily(gapi, o.settings.DeleteDatasourceConflicts), dsSpec)
	if err != nil {
		return fail(StepDatasourceUpsert, err)
	}
	cp.Steps = append(cp.Steps, p)

	if o.settings.Folders {
		p, err = reconciler.PlanUpsert(ctx, engine, FolderFamily(gapi), folderSpec)
		if err != nil {
			return fail(StepFolderUpsert, err)
		}
		cp.Steps = append(cp.Steps, p)
	}

	if o.settings.Teams {
		p, err = reconciler.PlanUpsert(ctx, engine, TeamFamily(gapi), teamSpec)
		if err != nil {
			return fail(StepTeamUpsert, err)
		}
		cp.Steps = append(cp.Steps, p)

		p, err = reconciler.PlanUpsert(ctx, engine, RoleFamily(gapi), roleSpec)
		if err != nil {
			return fail(StepTeamUpsert, err)
		}
		cp.Steps = append(cp.Steps, p)
	}
	return cp, nil
}
