package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/elvia2mqtt/internal/config"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	. "github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

var (
	ErrEntryNotFound    = errors.New("config entry not found")
	ErrUnloadFailed     = errors.New("config entry could not be unloaded")
	ErrIntegrationSetup = errors.New("integration setup failed")
)

// ConfigEntriesActor owns the lifecycle of every config entry. Lifecycle
// calls into the integration run one at a time; anything else that arrives
// meanwhile waits in the stash.
type ConfigEntriesActor struct {
	ActorWithStates
	config      *config.Config
	integration port.Integration
	store       port.EntryStore
	scheduler   quartz.Scheduler
	stash       *Stash
	entries     map[string]*managedEntry
	setupOK     bool

	logger *zap.Logger
}

type managedEntry struct {
	status     domain.EntryStatus
	retryDelay time.Duration
	retries    int
}

type entryOp int

const (
	opCreate entryOp = iota
	opSetup
	opUnload
	opReload
	opRemove
	opRetry
)

type pendingReply struct {
	op      entryOp
	replyTo *actor.PID
}

type lifecycleResult struct {
	entryId string
	unload  bool
	ok      bool
	err     error
	pending pendingReply
}

// initialSetup sets up a stored entry once the actor has started.
type initialSetup struct {
	EntryId string
}

// retrySetup is sent by the retry job. It is dropped unless the entry is
// still waiting for a retry.
type retrySetup struct {
	EntryId string
}

func NewConfigEntriesActor(config *config.Config, integration port.Integration, store port.EntryStore, logger *zap.Logger) *ConfigEntriesActor {
	act := &ConfigEntriesActor{
		config:      config,
		integration: integration,
		store:       store,
		stash:       &Stash{},
		entries:     map[string]*managedEntry{},
		logger:      ActorLogger(domain.ACTOR_ID_CONFIG_ENTRIES, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CEStartingState{actor: act})
	return act
}

func (state *ConfigEntriesActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CEStartingState struct {
	ActorState
	actor *ConfigEntriesActor
}

func (state CEStartingState) Name() string {
	return "starting"
}

func (state CEStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("config_entries@starting started")

		sched := quartz.NewStdScheduler()
		sched.Start(context.Background())
		state.actor.scheduler = sched

		stored, err := state.actor.store.Load()
		if err != nil {
			panic(fmt.Errorf("load config entries: %w", err))
		}

		state.actor.setupOK = state.actor.integration.Setup(context.Background(), state.actor.config)
		if !state.actor.setupOK {
			state.actor.logger.Error("config_entries@starting integration setup failed")
		}

		for _, entry := range stored {
			managed := state.actor.track(entry)
			if !state.actor.setupOK {
				managed.status.State = domain.ENTRY_STATE_SETUP_ERROR
				managed.status.Reason = ErrIntegrationSetup.Error()
				continue
			}
			// queued behind anything already stashed
			ctx.Send(ctx.Self(), initialSetup{EntryId: entry.EntryId})
		}
		state.actor.logger.Info("config entries loaded", zap.Int("entries", len(stored)))

		state.actor.Become(CEIdleState{actor: state.actor})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stopScheduler()
	default:
		state.actor.logger.Debug("config_entries@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type CEIdleState struct {
	ActorState
	actor *ConfigEntriesActor
}

func (state CEIdleState) Name() string {
	return "idle"
}

func (state CEIdleState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		act.respondHealth(ctx)
	case domain.ListEntriesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntriesResponse{Entries: act.list()})
	case domain.CreateEntryRequest:
		act.logger.Debug("config_entries@idle CreateEntryRequest")
		pending := pendingReply{op: opCreate, replyTo: ForRequest(msg).ReplyTo(ctx)}
		title := msg.Title
		if title == "" {
			title = domain.ENTRY_TITLE
		}
		entry := domain.ConfigEntry{
			EntryId:   uuid.New().String(),
			Domain:    domain.DOMAIN,
			Title:     title,
			Version:   domain.ENTRY_VERSION,
			Data:      msg.Data,
			CreatedAt: time.Now().UTC(),
		}
		if err := act.store.Save(entry); err != nil {
			act.respond(ctx, pending, domain.EntryStatus{ConfigEntry: entry}, fmt.Errorf("save config entry: %w", err))
			return
		}
		act.track(entry)
		act.logger.Info("config entry created", zap.String("entry_id", entry.EntryId))
		act.startSetup(ctx, entry.EntryId, pending)
	case domain.SetupEntryRequest:
		act.logger.Debug("config_entries@idle SetupEntryRequest", zap.String("entry_id", msg.EntryId))
		pending := pendingReply{op: opSetup, replyTo: ForRequest(msg).ReplyTo(ctx)}
		managed, ok := act.entries[msg.EntryId]
		if !ok {
			act.respond(ctx, pending, domain.EntryStatus{}, ErrEntryNotFound)
			return
		}
		if managed.status.State == domain.ENTRY_STATE_LOADED {
			act.respond(ctx, pending, managed.status, nil)
			return
		}
		act.cancelRetry(msg.EntryId)
		act.startSetup(ctx, msg.EntryId, pending)
	case initialSetup:
		managed, ok := act.entries[msg.EntryId]
		if !ok || managed.status.State != domain.ENTRY_STATE_NOT_LOADED {
			return
		}
		act.startSetup(ctx, msg.EntryId, pendingReply{op: opSetup})
	case retrySetup:
		managed, ok := act.entries[msg.EntryId]
		if !ok || managed.status.State != domain.ENTRY_STATE_SETUP_RETRY {
			act.logger.Debug("config_entries@idle stale retry dropped", zap.String("entry_id", msg.EntryId))
			return
		}
		managed.retries++
		act.logger.Info("retrying config entry setup", zap.String("entry_id", msg.EntryId), zap.Int("attempt", managed.retries))
		act.startSetup(ctx, msg.EntryId, pendingReply{op: opRetry})
	case domain.UnloadEntryRequest:
		act.logger.Debug("config_entries@idle UnloadEntryRequest", zap.String("entry_id", msg.EntryId))
		act.startUnload(ctx, msg.EntryId, pendingReply{op: opUnload, replyTo: ForRequest(msg).ReplyTo(ctx)})
	case domain.ReloadEntryRequest:
		act.logger.Debug("config_entries@idle ReloadEntryRequest", zap.String("entry_id", msg.EntryId))
		act.startUnload(ctx, msg.EntryId, pendingReply{op: opReload, replyTo: ForRequest(msg).ReplyTo(ctx)})
	case domain.RemoveEntryRequest:
		act.logger.Debug("config_entries@idle RemoveEntryRequest", zap.String("entry_id", msg.EntryId))
		act.startUnload(ctx, msg.EntryId, pendingReply{op: opRemove, replyTo: ForRequest(msg).ReplyTo(ctx)})
	case *actor.Stopping:
		act.stopScheduler()
	case *actor.Restarting:
		act.stopScheduler()
	default:
		act.logger.Debug("config_entries@idle recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Busy state

type CEBusyState struct {
	ActorState
	actor *ConfigEntriesActor
}

func (state CEBusyState) Name() string {
	return "busy"
}

func (state CEBusyState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		act.respondHealth(ctx)
	case domain.ListEntriesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntriesResponse{Entries: act.list()})
	case lifecycleResult:
		act.UnbecomeStacked()
		if msg.unload {
			act.onUnloaded(ctx, msg)
		} else {
			act.onSetup(ctx, msg)
		}
		// a reload may have gone busy again
		if act.StateName() != (CEBusyState{}).Name() {
			act.stash.UnstashAll(ctx)
		}
	case *actor.Stopping:
		act.stopScheduler()
	case *actor.Restarting:
		act.stopScheduler()
	default:
		act.logger.Debug("config_entries@busy stash", zap.String("type", fmt.Sprintf("%T", msg)))
		act.stash.Stash(ctx, msg)
	}
}

func (state *ConfigEntriesActor) startSetup(ctx actor.Context, entryId string, pending pendingReply) {
	managed := state.entries[entryId]
	if !state.setupOK {
		managed.status.State = domain.ENTRY_STATE_SETUP_ERROR
		managed.status.Reason = ErrIntegrationSetup.Error()
		state.respond(ctx, pending, managed.status, ErrIntegrationSetup)
		return
	}
	entry := managed.status.ConfigEntry
	integration := state.integration

	NewBackgroundTask(ctx, func(taskCtx context.Context) (*lifecycleResult, error) {
		ok, err := integration.SetupEntry(taskCtx, entry)
		return &lifecycleResult{entryId: entry.EntryId, ok: ok, err: err, pending: pending}, nil
	}).WithTimeout(state.config.Entries.SetupTimeout()).OnError(state.logTaskError("setup", entry.EntryId)).Recover(func(err error) lifecycleResult {
		return lifecycleResult{entryId: entry.EntryId, err: err, pending: pending}
	}).PipeTo(ctx.Self())

	state.BecomeStacked(CEBusyState{actor: state})
}

func (state *ConfigEntriesActor) startUnload(ctx actor.Context, entryId string, pending pendingReply) {
	managed, ok := state.entries[entryId]
	if !ok {
		state.respond(ctx, pending, domain.EntryStatus{}, ErrEntryNotFound)
		return
	}
	state.cancelRetry(entryId)

	switch managed.status.State {
	case domain.ENTRY_STATE_LOADED, domain.ENTRY_STATE_FAILED_UNLOAD, domain.ENTRY_STATE_SETUP_ERROR:
		// a failed setup may have announced part of its entities
	default:
		// nothing is set up, the unload is trivially done
		state.onUnloaded(ctx, lifecycleResult{entryId: entryId, unload: true, ok: true, pending: pending})
		return
	}

	entry := managed.status.ConfigEntry
	integration := state.integration

	NewBackgroundTask(ctx, func(taskCtx context.Context) (*lifecycleResult, error) {
		ok, err := integration.UnloadEntry(taskCtx, entry)
		return &lifecycleResult{entryId: entry.EntryId, unload: true, ok: ok, err: err, pending: pending}, nil
	}).WithTimeout(state.config.Entries.SetupTimeout()).OnError(state.logTaskError("unload", entry.EntryId)).Recover(func(err error) lifecycleResult {
		return lifecycleResult{entryId: entry.EntryId, unload: true, err: err, pending: pending}
	}).PipeTo(ctx.Self())

	state.BecomeStacked(CEBusyState{actor: state})
}

// logTaskError reports a lifecycle task that panicked or ran out of time.
func (state *ConfigEntriesActor) logTaskError(task, entryId string) func(error) {
	logger := state.logger
	return func(err error) {
		logger.Warn("config entry task aborted", zap.String("task", task), zap.String("entry_id", entryId), zap.Error(err))
	}
}

func (state *ConfigEntriesActor) onSetup(ctx actor.Context, res lifecycleResult) {
	managed, ok := state.entries[res.entryId]
	if !ok {
		// removed while setting up
		return
	}
	switch {
	case res.err != nil:
		managed.status.State = domain.ENTRY_STATE_SETUP_ERROR
		managed.status.Reason = res.err.Error()
		state.logger.Error("config entry setup failed", zap.String("entry_id", res.entryId), zap.Error(res.err))
	case !res.ok:
		managed.status.State = domain.ENTRY_STATE_SETUP_RETRY
		managed.status.Reason = fmt.Sprintf("not ready, retrying in %s", managed.retryDelay)
		state.logger.Warn("config entry not ready", zap.String("entry_id", res.entryId), zap.Duration("retry_in", managed.retryDelay))
		state.scheduleRetry(ctx, managed)
	default:
		managed.status.State = domain.ENTRY_STATE_LOADED
		managed.status.Reason = ""
		managed.retryDelay = state.config.Entries.RetryInitial()
		managed.retries = 0
		state.logger.Info("config entry loaded", zap.String("entry_id", res.entryId))
	}
	state.respond(ctx, res.pending, managed.status, res.err)
}

func (state *ConfigEntriesActor) onUnloaded(ctx actor.Context, res lifecycleResult) {
	managed := state.entries[res.entryId]
	if res.err != nil || !res.ok {
		managed.status.State = domain.ENTRY_STATE_FAILED_UNLOAD
		managed.status.Reason = ErrUnloadFailed.Error()
		if res.err != nil {
			managed.status.Reason = res.err.Error()
		}
		state.logger.Error("config entry unload failed", zap.String("entry_id", res.entryId), zap.Error(res.err))
		err := res.err
		if err == nil {
			err = ErrUnloadFailed
		}
		state.respond(ctx, res.pending, managed.status, err)
		return
	}

	managed.status.State = domain.ENTRY_STATE_NOT_LOADED
	managed.status.Reason = ""
	managed.retryDelay = state.config.Entries.RetryInitial()
	managed.retries = 0
	state.integration.Forget(res.entryId)

	switch res.pending.op {
	case opReload:
		state.startSetup(ctx, res.entryId, res.pending)
	case opRemove:
		if err := state.store.Delete(res.entryId); err != nil {
			state.respond(ctx, res.pending, managed.status, fmt.Errorf("delete config entry: %w", err))
			return
		}
		delete(state.entries, res.entryId)
		state.logger.Info("config entry removed", zap.String("entry_id", res.entryId))
		state.respond(ctx, res.pending, managed.status, nil)
	default:
		state.respond(ctx, res.pending, managed.status, nil)
	}
}

func (state *ConfigEntriesActor) respond(ctx actor.Context, pending pendingReply, status domain.EntryStatus, err error) {
	if pending.replyTo == nil {
		return
	}
	mixin := domain.ErrorResponse(err)
	var resp any
	switch pending.op {
	case opCreate:
		resp = domain.CreateEntryResponse{ActorResponseMixIn: mixin, Entry: status}
	case opUnload:
		resp = domain.UnloadEntryResponse{ActorResponseMixIn: mixin, Entry: status}
	case opRemove:
		resp = domain.RemoveEntryResponse{ActorResponseMixIn: mixin}
	default:
		resp = domain.SetupEntryResponse{ActorResponseMixIn: mixin, Entry: status}
	}
	ctx.Send(pending.replyTo, resp)
}

func (state *ConfigEntriesActor) respondHealth(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_CONFIG_ENTRIES,
		Healthy: state.setupOK,
		State:   state.StateName(),
	})
}

func (state *ConfigEntriesActor) track(entry domain.ConfigEntry) *managedEntry {
	managed := &managedEntry{
		status: domain.EntryStatus{
			ConfigEntry: entry,
			State:       domain.ENTRY_STATE_NOT_LOADED,
		},
		retryDelay: state.config.Entries.RetryInitial(),
	}
	state.entries[entry.EntryId] = managed
	return managed
}

func (state *ConfigEntriesActor) list() []domain.EntryStatus {
	out := make([]domain.EntryStatus, 0, len(state.entries))
	for _, managed := range state.entries {
		out = append(out, managed.status)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryId < out[j].EntryId
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// scheduleRetry arms a run-once job that asks for another setup attempt. The
// delay doubles on every attempt up to entries.retry_max.
func (state *ConfigEntriesActor) scheduleRetry(ctx actor.Context, managed *managedEntry) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	entryId := managed.status.EntryId

	key := retryJobKey(entryId)
	_ = state.scheduler.DeleteJob(key)

	retryJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, retrySetup{EntryId: entryId})
		return true, nil
	})
	err := state.scheduler.ScheduleJob(quartz.NewJobDetail(retryJob, key), quartz.NewRunOnceTrigger(managed.retryDelay))
	if err != nil {
		state.logger.Error("could not schedule setup retry", zap.String("entry_id", entryId), zap.Error(err))
		return
	}

	managed.retryDelay = min(managed.retryDelay*2, state.config.Entries.RetryMax())
}

func (state *ConfigEntriesActor) cancelRetry(entryId string) {
	if state.scheduler != nil {
		_ = state.scheduler.DeleteJob(retryJobKey(entryId))
	}
}

func (state *ConfigEntriesActor) stopScheduler() {
	if state.scheduler != nil {
		state.scheduler.Stop()
		state.scheduler = nil
	}
}

func retryJobKey(entryId string) *quartz.JobKey {
	return quartz.NewJobKey("setup_retry_" + entryId)
}
