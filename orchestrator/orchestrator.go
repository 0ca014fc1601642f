// Package orchestrator runs the provisioning pipeline: per selected client,
// stack, access policy, token and datasource, strictly in that order, each
// step feeding the next. The first failure aborts the whole run.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fortna/stackfleet/internal/config"
	"github.com/fortna/stackfleet/internal/filter"
	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/telemetry"
	"github.com/fortna/stackfleet/types"
	"github.com/fortna/stackfleet/wal"
)

// Settings are the pipeline parameters taken from the configuration.
type Settings struct {
	MainStackName    string
	SlugPrefix       string
	EnvironmentKey   string
	EnvironmentValue string
	Skip             []string
	SkipLabels       map[string]string

	TokenTTL      time.Duration
	ReplaceTokens bool

	DeleteDatasourceConflicts bool
	DatasourceIsDefault       bool

	Folders bool
	Teams   bool

	// JournalDir enables the run journal when set.
	JournalDir string
}

// SettingsFromConfig maps a loaded configuration onto pipeline settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MainStackName:             cfg.MainStack.Name,
		SlugPrefix:                cfg.SlugPrefix,
		EnvironmentKey:            cfg.Environment.Key,
		EnvironmentValue:          cfg.Environment.Value,
		Skip:                      cfg.ClientNamesToSkip,
		SkipLabels:                cfg.ClientLabelsToSkip,
		TokenTTL:                  cfg.Token.TTL,
		ReplaceTokens:             cfg.Token.ShouldReplace(),
		DeleteDatasourceConflicts: cfg.Datasource.DeleteConflicts,
		DatasourceIsDefault:       cfg.Datasource.Default(),
		Folders:                   cfg.Provisioning.Folders,
		Teams:                     cfg.Provisioning.Teams,
		JournalDir:                cfg.JournalDir,
	}
}

// Orchestrator coordinates discovery → selection → per-client pipeline
type Orchestrator struct {
	cloud    CloudAPI
	connect  GrafanaConnector
	discover DiscovererFactory
	settings Settings

	base    *telemetry.Logger
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the run start time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator.
func New(cloud CloudAPI, connect GrafanaConnector, discover DiscovererFactory, settings Settings, opts ...Option) *Orchestrator {
	if settings.SlugPrefix == "" {
		settings.SlugPrefix = config.DefaultSlugPrefix
	}
	if settings.EnvironmentKey == "" {
		settings.EnvironmentKey = "client_environment"
	}
	if settings.EnvironmentValue == "" {
		settings.EnvironmentValue = "Production"
	}
	if settings.TokenTTL <= 0 {
		settings.TokenTTL = config.DefaultTokenTTL
	}

	o := &Orchestrator{
		cloud:    cloud,
		connect:  connect,
		discover: discover,
		settings: settings,
		logger:   telemetry.NewNopLogger(),
		metrics:  telemetry.NewNopMetrics(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.base = o.logger
	o.logger = o.logger.Component("orchestrator")
	return o
}

// runState is shared by the steps of one run.
type runState struct {
	engine  *reconciler.Engine
	journal *wal.WAL
	main    types.Stack
	start   time.Time
	result  *RunResult
}

// Run provisions every selected client. It stops at the first failure and
// returns a *StepError; clients finished before it stay provisioned.
func (o *Orchestrator) Run(ctx context.Context) (result *RunResult, err error) {
	start := o.now()
	runID := uuid.NewString()
	result = &RunResult{
		RunID:     runID,
		StartTime: start,
		Actions:   map[string]map[reconciler.Action]int{},
	}

	ctx, span := o.tracer.Start(ctx, "provision.run", trace.WithAttributes(attribute.String("run_id", runID)))
	logger := o.logger.WithContext(ctx).With().Str("run_id", runID).Logger()
	logger.Info().Str("main_stack", o.settings.MainStackName).Msg("starting provisioning run")

	journal, err := o.openJournal(runID)
	if err != nil {
		span.End()
		return result, err
	}

	rs := &runState{
		engine: reconciler.NewEngine(
			reconciler.WithLogger(o.base),
			reconciler.WithMetrics(o.metrics),
			reconciler.WithTracer(o.tracer),
			reconciler.WithJournal(journal),
		),
		journal: journal,
		start:   start,
		result:  result,
	}

	defer func() {
		result.EndTime = o.now()
		result.Duration = result.EndTime.Sub(start)
		result.Success = err == nil
		o.metrics.RecordRun(ctx, result.Duration, err)

		if err != nil {
			result.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.appendJournal(journal, wal.EntryRunFailed, "", result, err)
			logger.Error().Err(err).
				Int("provisioned", len(result.Provisioned)).
				Int("selected", len(result.Selected)).
				Msg("provisioning run aborted")
		} else {
			o.appendJournal(journal, wal.EntryRunFinished, "", result, nil)
			logger.Info().
				Int("provisioned", len(result.Provisioned)).
				Int("writes", result.TotalWrites()).
				Dur("duration", result.Duration).
				Msg("provisioning run complete")
		}
		span.End()
		if journal != nil {
			if cerr := journal.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("close journal")
			}
		}
	}()

	o.appendJournal(journal, wal.EntryRunStarted, "", o.settings, nil)

	err = o.step(ctx, rs, "", StepDiscover, func(ctx context.Context) error {
		main, _, discovered, selected, err := o.selectClients(ctx)
		rs.main = main
		result.Discovered = discovered
		result.Selected = selected
		return err
	})
	if err != nil {
		return result, err
	}

	for _, c := range result.Selected {
		cr, cerr := o.provisionClient(ctx, rs, c)
		o.metrics.RecordClient(ctx, cerr)
		if cerr != nil {
			return result, cerr
		}
		result.Provisioned = append(result.Provisioned, cr)
	}
	return result, nil
}

// selectClients finds the main stack, discovers clients from its metrics
// and applies the environment and exclusion filters.
func (o *Orchestrator) selectClients(ctx context.Context) (types.Stack, []types.Stack, int, []types.Client, error) {
	stacks, err := o.cloud.ListStacks(ctx)
	if err != nil {
		return types.Stack{}, nil, 0, nil, fmt.Errorf("list stacks: %w", err)
	}

	main, ok := types.FindStack(stacks, o.settings.MainStackName)
	if !ok {
		return types.Stack{}, stacks, 0, nil, fmt.Errorf("%w: %q", ErrMainStackMissing, o.settings.MainStackName)
	}

	d, err := o.discover(main)
	if err != nil {
		return main, stacks, 0, nil, fmt.Errorf("create discoverer: %w", err)
	}
	clients, err := d.Clients(ctx)
	if err != nil {
		return main, stacks, 0, nil, err
	}

	f := filter.ForEnvironment(o.settings.EnvironmentKey, o.settings.EnvironmentValue, o.settings.Skip, o.settings.SkipLabels)
	selected := f.Select(clients)

	o.logger.WithContext(ctx).Info().
		Int("discovered", len(clients)).
		Int("selected", len(selected)).
		Strs("skipped", o.settings.Skip).
		Interface("skipped_labels", o.settings.SkipLabels).
		Msg("selected clients")
	return main, stacks, len(clients), selected, nil
}

// Clients runs discovery and selection only. No writes are made.
func (o *Orchestrator) Clients(ctx context.Context) (*Selection, error) {
	main, _, discovered, selected, err := o.selectClients(ctx)
	if err != nil {
		return nil, &StepError{Step: StepDiscover, Err: err}
	}
	return &Selection{MainStack: main, Discovered: discovered, Selected: selected}, nil
}

func (o *Orchestrator) provisionClient(ctx context.Context, rs *runState, c types.Client) (ClientResult, error) {
	slug := types.Slug(o.settings.SlugPrefix, c.Name)
	env := o.settings.EnvironmentValue
	cr := ClientResult{Client: c, Slug: slug}

	ctx, span := o.tracer.Start(ctx, "provision.client", trace.WithAttributes(
		attribute.String("client", c.Name),
		attribute.String("slug", slug),
	))
	defer span.End()

	var stack types.Stack
	err := o.step(ctx, rs, c.Name, StepStackUpsert, func(ctx context.Context) error {
		out, err := reconciler.Upsert(ctx, rs.engine, StackFamily(o.cloud), StackSpecFor(c, slug, env, rs.main))
		rs.result.countWrites(out.Writes)
		stack = out.Entity
		return err
	})
	if err != nil {
		return cr, err
	}
	cr.StackID, cr.StackURL = stack.ID, stack.URL

	var policy types.AccessPolicy
	err = o.step(ctx, rs, c.Name, StepPolicyUpsert, func(ctx context.Context) error {
		out, err := reconciler.Upsert(ctx, rs.engine, AccessPolicyFamily(o.cloud), AccessPolicySpecFor(c, slug, env, rs.main, stack))
		rs.result.countWrites(out.Writes)
		policy = out.Entity
		return err
	})
	if err != nil {
		return cr, err
	}
	cr.AccessPolicyID = policy.ID

	var token types.Token
	err = o.step(ctx, rs, c.Name, StepTokenUpsert, func(ctx context.Context) error {
		spec := TokenSpecFor(c, slug, policy.ID, stack.RegionSlug, rs.start.Add(o.settings.TokenTTL))
		out, err := reconciler.Upsert(ctx, rs.engine, TokenFamily(o.cloud, o.settings.ReplaceTokens), spec)
		rs.result.countWrites(out.Writes)
		token = out.Entity
		return err
	})
	if err != nil {
		return cr, err
	}
	cr.TokenID, cr.TokenExpiresAt = token.ID, token.ExpiresAt

	var (
		gapi       GrafanaAPI
		datasource types.Datasource
	)
	err = o.step(ctx, rs, c.Name, StepDatasourceUpsert, func(ctx context.Context) error {
		var err error
		gapi, err = o.connect(stack.URL)
		if err != nil {
			return fmt.Errorf("connect to stack %s: %w", stack.Slug, err)
		}
		spec := DatasourceSpecFor(c, slug, rs.main, token.Secret, o.settings.DatasourceIsDefault)
		if token.Secret == "" {
			// keep the password already stored on the datasource
			spec.SecureJSONData = nil
			o.logger.WithContext(ctx).Warn().Str("client", c.Name).
				Msg("token secret unavailable, datasource password left unchanged")
		}
		out, err := reconciler.Upsert(ctx, rs.engine, DatasourceFamily(gapi, o.settings.DeleteDatasourceConflicts), spec)
		rs.result.countWrites(out.Writes)
		datasource = out.Entity
		return err
	})
	if err != nil {
		return cr, err
	}
	cr.DatasourceUID = datasource.UID

	if o.settings.Folders {
		err = o.step(ctx, rs, c.Name, StepFolderUpsert, func(ctx context.Context) error {
			out, err := reconciler.Upsert(ctx, rs.engine, FolderFamily(gapi), FolderSpecFor(c, slug))
			rs.result.countWrites(out.Writes)
			cr.FolderUID = out.Entity.UID
			return err
		})
		if err != nil {
			return cr, err
		}
	}

	if o.settings.Teams {
		err = o.step(ctx, rs, c.Name, StepTeamUpsert, func(ctx context.Context) error {
			team, err := o.upsertViewerTeam(ctx, rs, gapi, c, slug, datasource.UID, cr.FolderUID)
			cr.TeamID = team.ID
			return err
		})
		if err != nil {
			return cr, err
		}
	}

	o.logger.WithContext(ctx).Info().
		Str("client", c.Name).
		Str("slug", slug).
		Int64("stack_id", stack.ID).
		Str("access_policy_id", policy.ID).
		Str("token_id", token.ID).
		Str("datasource_uid", datasource.UID).
		Str("step", string(StepDone)).
		Msg("client provisioned")
	return cr, nil
}

// upsertViewerTeam ensures the client's viewer team and role, assigns the
// role and grants the team Query on the client datasource and, when the
// client has a folder, View on it.
func (o *Orchestrator) upsertViewerTeam(ctx context.Context, rs *runState, gapi GrafanaAPI, c types.Client, slug, datasourceUID, folderUID string) (types.Team, error) {
	teamOut, err := reconciler.Upsert(ctx, rs.engine, TeamFamily(gapi), TeamSpecFor(c))
	rs.result.countWrites(teamOut.Writes)
	if err != nil {
		return types.Team{}, err
	}
	team := teamOut.Entity

	roleOut, err := reconciler.Upsert(ctx, rs.engine, RoleFamily(gapi), ViewerRoleSpecFor(c, slug))
	rs.result.countWrites(roleOut.Writes)
	if err != nil {
		return team, err
	}

	if err := gapi.AssignTeamRole(ctx, team.ID, roleOut.Entity.UID); err != nil {
		return team, err
	}
	if err := gapi.SetTeamDatasourcePermission(ctx, datasourceUID, team.ID, types.DatasourcePermissionQuery); err != nil {
		return team, err
	}
	if folderUID != "" {
		if err := grantFolderView(ctx, gapi, folderUID, team.ID); err != nil {
			return team, err
		}
	}

	o.logger.WithContext(ctx).Debug().
		Int64("team_id", team.ID).
		Str("role_uid", roleOut.Entity.UID).
		Str("datasource_uid", datasourceUID).
		Str("folder_uid", folderUID).
		Msg("granted team access")
	return team, nil
}

// grantFolderView adds a View entry for the team to the folder's
// permissions. The update replaces the whole list, so existing entries
// are sent back unchanged. Nothing is written when the team already has
// View or more.
func grantFolderView(ctx context.Context, gapi GrafanaAPI, folderUID string, teamID int64) error {
	items, err := gapi.GetFolderPermissions(ctx, folderUID)
	if err != nil {
		return err
	}
	for _, p := range items {
		if p.TeamID == teamID && p.Permission >= types.FolderPermissionView {
			return nil
		}
	}

	updated := make([]types.Permission, 0, len(items)+1)
	for _, p := range items {
		if p.TeamID != teamID {
			updated = append(updated, p)
		}
	}
	updated = append(updated, types.Permission{TeamID: teamID, Permission: types.FolderPermissionView})
	return gapi.UpdateFolderPermissions(ctx, folderUID, updated)
}

// stepRecord is the journal payload of a finished step.
type stepRecord struct {
	Step     Step          `json:"step"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// step runs one pipeline state with its span, metrics and journal entry.
func (o *Orchestrator) step(ctx context.Context, rs *runState, client string, step Step, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "step."+strings.ToLower(string(step)), trace.WithAttributes(
		attribute.String("client", client),
		attribute.String("step", string(step)),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	o.metrics.RecordStep(ctx, string(step), duration, err)

	rec := stepRecord{Step: step, Status: "success", Duration: duration}
	errMsg := ""
	if err != nil {
		rec.Status = "failure"
		errMsg = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, errMsg)
	}
	telemetry.RecordStepEvent(span, client, string(step), rec.Status, errMsg)
	o.appendJournal(rs.journal, wal.EntryStep, client, rec, err)

	o.logger.WithContext(ctx).Debug().
		Str("client", client).
		Str("step", string(step)).
		Str("status", rec.Status).
		Dur("duration", duration).
		Msg("pipeline step")

	if err != nil {
		return &StepError{Client: client, Step: step, Err: err}
	}
	return nil
}

func (o *Orchestrator) openJournal(runID string) (*wal.WAL, error) {
	if o.settings.JournalDir == "" {
		return nil, nil
	}
	j, err := wal.Open(o.settings.JournalDir, runID)
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	return j, nil
}

func (o *Orchestrator) appendJournal(j *wal.WAL, entryType wal.EntryType, key string, data any, err error) {
	if j == nil {
		return
	}
	var jerr error
	if err != nil {
		jerr = j.AppendError(entryType, key, data, err)
	} else {
		jerr = j.Append(entryType, key, data)
	}
	if jerr != nil {
		o.logger.Warn().Err(jerr).Str("entry", string(entryType)).Msg("journal append failed")
	}
}
