package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

// #region pipeline-struct
// Pipeline runs the engine components in order for each turn and persists
// the result. Turns for the same user are serialized; different users run
// in parallel.
type Pipeline struct {
	store    state.Store
	computer *compute.Computer
	detector *conflict.Detector
	recovery *recovery.Manager
	journal  *logging.Journal
	logger   *zap.Logger
	now      func() time.Time
	workers  int

	locks sync.Map // user id -> *sync.Mutex
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now for the pipeline and every component it builds.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the zap logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithJournal records transitions and recovery results. A nil journal disables it.
func WithJournal(j *logging.Journal) Option {
	return func(p *Pipeline) { p.journal = j }
}

// New wires the components around store.
func New(store state.Store, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
		workers: cfg.DecayWorkers,
	}
	for _, o := range opts {
		o(p)
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	p.computer = compute.NewComputer(cfg.Compute, compute.WithClock(p.now))
	p.detector = conflict.NewDetector(cfg.Conflict, conflict.WithClock(p.now))
	p.recovery = recovery.NewManager(cfg.Recovery, recovery.WithClock(p.now))
	return p
}

// Store returns the backing store.
func (p *Pipeline) Store() state.Store { return p.store }

// Recovery returns the recovery manager, for estimates.
func (p *Pipeline) Recovery() *recovery.Manager { return p.recovery }

// Journal returns the event journal, nil when disabled.
func (p *Pipeline) Journal() *logging.Journal { return p.journal }

func (p *Pipeline) lock(userID string) func() {
	m, _ := p.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// #endregion pipeline-struct

// #region process-turn
// ProcessTurn computes the next state for in.UserID, settles its conflict
// kind and saves it. Escalation is applied only when it raises severity;
// otherwise the state may calm down one step. A repair attempt and passive
// decay follow. Errors from any component abort the turn without saving.
func (p *Pipeline) ProcessTurn(ctx context.Context, in TurnInput) (Outcome, error) {
	if in.UserID == "" {
		return Outcome{}, fmt.Errorf("process turn: empty user id")
	}
	unlock := p.lock(in.UserID)
	defer unlock()

	ts := in.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	prev, err := p.store.GetCurrent(ctx, in.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("process turn: %w", err)
	}

	res, err := p.computer.Compute(compute.Input{
		UserID:            in.UserID,
		Current:           prev,
		Timestamp:         ts,
		LifeEvents:        in.LifeEvents,
		Tones:             in.Tones,
		Chapter:           in.Chapter,
		RelationshipScore: in.RelationshipScore,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("process turn: %w", err)
	}
	s := res.State
	if in.IgnoredMessages != nil {
		if s, err = s.WithIgnoredMessageCount(*in.IgnoredMessages, ts); err != nil {
			return Outcome{}, fmt.Errorf("process turn: %w", err)
		}
	}

	out := Outcome{Previous: prev, Breakdown: res.Breakdown}
	var events []logging.Event
	record := func(kind logging.EventKind, from mood.ConflictState, st mood.EmotionalState, reason string) {
		events = append(events, logging.Event{
			UserID:    st.UserID,
			StateID:   st.StateID,
			Kind:      kind,
			From:      from,
			To:        st.ConflictState,
			Progress:  st.RecoveryProgress(),
			Reason:    reason,
			CreatedAt: ts,
		})
	}

	out.Escalation = p.detector.CheckEscalation(s, prev, in.Attachment)
	if out.Escalation.Should && out.Escalation.Target.Severity() > s.ConflictState.Severity() {
		from := s.ConflictState
		if s, err = p.detector.ApplyTransitionAt(s, out.Escalation.Target, out.Escalation.Reason, ts); err != nil {
			return Outcome{}, fmt.Errorf("process turn: %w", err)
		}
		record(logging.EventEscalation, from, s, out.Escalation.Reason)
	} else {
		out.DeEscalation = p.detector.CheckDeEscalation(s, in.Positive)
		if out.DeEscalation.Should {
			from := s.ConflictState
			if s, err = p.detector.ApplyTransitionAt(s, out.DeEscalation.Target, out.DeEscalation.Reason, ts); err != nil {
				return Outcome{}, fmt.Errorf("process turn: %w", err)
			}
			record(logging.EventDeEscalation, from, s, out.DeEscalation.Reason)
		}
	}

	if in.Approach != "" {
		from := s.ConflictState
		var r recovery.Result
		s, r = p.recovery.Apply(s, in.Approach, in.intensity())
		out.Recovery = &r
		if r.Recovered {
			record(logging.EventRecovery, from, s, r.Reason)
		}
	}

	from := s.ConflictState
	s, out.Decay = p.recovery.ApplyDecay(s, ts)
	if out.Decay.Recovered {
		record(logging.EventDecay, from, s, out.Decay.Reason)
	}

	if err := p.store.Save(ctx, s); err != nil {
		return Outcome{}, fmt.Errorf("process turn: %w", err)
	}
	out.State = s
	out.Events = p.journalEvents(ctx, events)

	fields := logging.StateFields(s)
	if out.Changed() {
		prevKind := mood.ConflictNone
		if prev != nil {
			prevKind = prev.ConflictState
		}
		p.logger.Info("conflict changed", append(fields,
			zap.String("from", string(prevKind)),
			zap.String("to", string(s.ConflictState)))...)
	} else {
		p.logger.Debug("turn processed", fields...)
	}
	return out, nil
}

// journalEvents stores events best-effort and returns them. A failing
// journal never fails the turn.
func (p *Pipeline) journalEvents(ctx context.Context, events []logging.Event) []logging.Event {
	if p.journal == nil {
		return events
	}
	for _, e := range events {
		if err := p.journal.Record(ctx, e); err != nil {
			p.logger.Warn("journal record failed",
				zap.String("user_id", e.UserID),
				zap.String("kind", string(e.Kind)),
				zap.Error(err))
		}
	}
	return events
}

// #endregion process-turn

// #region decay-sweep
// DecaySweep applies passive decay to each user in parallel. An empty list
// sweeps every user the store reports in conflict. Users without a state are
// skipped; a state is saved only when decay credited progress. The first
// error cancels the remaining work.
func (p *Pipeline) DecaySweep(ctx context.Context, userIDs []string) ([]DecayOutcome, error) {
	if len(userIDs) == 0 {
		ids, err := p.store.ConflictUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("decay sweep: %w", err)
		}
		userIDs = ids
	}

	out := make([]DecayOutcome, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, id := range userIDs {
		g.Go(func() error {
			o, err := p.decayOne(gctx, id)
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decay sweep: %w", err)
	}

	saved := 0
	for _, o := range out {
		if o.Saved {
			saved++
		}
	}
	p.logger.Info("decay sweep finished", zap.Int("users", len(out)), zap.Int("saved", saved))
	return out, nil
}

func (p *Pipeline) decayOne(ctx context.Context, userID string) (DecayOutcome, error) {
	if err := ctx.Err(); err != nil {
		return DecayOutcome{}, err
	}
	unlock := p.lock(userID)
	defer unlock()

	cur, err := p.store.GetCurrent(ctx, userID)
	if err != nil {
		return DecayOutcome{}, err
	}
	if cur == nil {
		return DecayOutcome{UserID: userID, From: mood.ConflictNone, To: mood.ConflictNone,
			Result: recovery.Result{ConflictState: mood.ConflictNone, Reason: "no state"}}, nil
	}

	at := p.now()
	s, r := p.recovery.ApplyDecay(*cur, at)
	o := DecayOutcome{UserID: userID, From: cur.ConflictState, To: s.ConflictState, Result: r}
	if r.ProgressAdded <= 0 && !r.Recovered {
		return o, nil
	}
	if err := p.store.Save(ctx, s); err != nil {
		return DecayOutcome{}, err
	}
	o.Saved = true
	if r.Recovered {
		p.journalEvents(ctx, []logging.Event{{
			UserID:    userID,
			StateID:   s.StateID,
			Kind:      logging.EventDecay,
			From:      cur.ConflictState,
			To:        s.ConflictState,
			Progress:  r.Progress,
			Reason:    r.Reason,
			CreatedAt: at,
		}})
		p.logger.Info("decay recovered", zap.String("user_id", userID),
			zap.String("from", string(cur.ConflictState)), zap.String("to", string(s.ConflictState)))
	}
	return o, nil
}

// #endregion decay-sweep
