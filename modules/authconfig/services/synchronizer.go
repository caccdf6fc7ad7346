package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/fieldmeta"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

// Messages carried by submit notifications.
const (
	MessageSubmitSucceeded = "Successfully updated settings"
	MessageSubmitFailed    = "Failed to update settings"
)

// Synchronizer mediates between the remote config store and editable form state.
type Synchronizer struct {
	store       ports.ConfigStore
	perms       ports.PermissionChecker
	notifier    ports.Notifier
	logger      *log.Logger
	changedOnly bool
	now         func() time.Time
	newID       func() (string, error)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithNotifier sends submit outcomes to n.
func WithNotifier(n ports.Notifier) Option {
	return func(s *Synchronizer) { s.notifier = n }
}

// WithLogger replaces the default discard logger. A nil l is ignored.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithChangedFieldsOnly makes Submit send only the fields that differ from the baseline
// instead of the full known-key snapshot.
func WithChangedFieldsOnly() Option {
	return func(s *Synchronizer) { s.changedOnly = true }
}

// WithClock sets the time source used for load and notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSynchronizer requires a store. A nil perms denies every mutation.
func NewSynchronizer(store ports.ConfigStore, perms ports.PermissionChecker, opts ...Option) (*Synchronizer, error) {
	if store == nil {
		return nil, errors.New("authconfig: missing config store")
	}
	s := &Synchronizer{
		store:  store,
		perms:  perms,
		logger: log.New(io.Discard),
		now:    time.Now,
		newID:  newSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newSessionID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Session is one explicitly owned edit session of a project's hooks configuration.
type Session struct {
	id         string
	projectRef string
	state      *FormState

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	canMutate  bool
	submitting bool
	closed     bool
	loadedAt   time.Time
}

func (s *Session) ID() string               { return s.id }
func (s *Session) ProjectRef() string       { return s.projectRef }
func (s *Session) State() *FormState        { return s.state }
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) CanMutate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canMutate
}

func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down. In-flight remote calls are cancelled and their
// results discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// SessionView is a point-in-time copy of a session for display.
type SessionView struct {
	ID         string        `json:"id"`
	ProjectRef string        `json:"project_ref"`
	Current    types.Values  `json:"current"`
	Baseline   types.Values  `json:"baseline"`
	Changed    []types.Field `json:"changed"`
	Dirty      bool          `json:"dirty"`
	CanMutate  bool          `json:"can_mutate"`
	Submitting bool          `json:"submitting"`
	LoadedAt   time.Time     `json:"loaded_at"`
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	canMutate, submitting, loadedAt := s.canMutate, s.submitting, s.loadedAt
	s.mu.Unlock()

	current := s.state.Current()
	baseline := s.state.Baseline()
	return SessionView{
		ID:         s.id,
		ProjectRef: s.projectRef,
		Current:    current,
		Baseline:   baseline,
		Changed:    current.Diff(baseline),
		Dirty:      !current.Equal(baseline),
		CanMutate:  canMutate,
		Submitting: submitting,
		LoadedAt:   loadedAt,
	}
}

func (sy *Synchronizer) canMutate(ctx context.Context, projectRef string) bool {
	if sy.perms == nil {
		return false
	}
	return sy.perms.CanMutate(ctx, projectRef, fieldmeta.ResourceKind)
}

func (sy *Synchronizer) fetch(ctx context.Context, projectRef string) (types.Values, error) {
	remote, err := sy.store.Fetch(ctx, projectRef)
	if err != nil {
		return nil, newError(KindFetchFailed, err)
	}
	values, err := fieldmeta.NormalizeRemote(remote)
	if err != nil {
		return nil, newError(KindFetchFailed, err)
	}
	return values, nil
}

// Load fetches the project's configuration and opens an edit session on it.
// It never retries; a failed load leaves nothing behind.
func (sy *Synchronizer) Load(ctx context.Context, projectRef string) (*Session, error) {
	projectRef = strings.TrimSpace(projectRef)
	if projectRef == "" {
		return nil, newError(KindFetchFailed, errors.New("missing project ref"))
	}

	values, err := sy.fetch(ctx, projectRef)
	if err != nil {
		sy.logger.Warn("auth config load failed", "project_ref", projectRef, "err", err)
		return nil, err
	}
	state, err := NewFormState(values)
	if err != nil {
		return nil, err
	}
	id, err := sy.newID()
	if err != nil {
		return nil, newError(KindFetchFailed, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		projectRef: projectRef,
		state:      state,
		ctx:        sessionCtx,
		cancel:     cancel,
		canMutate:  sy.canMutate(ctx, projectRef),
		loadedAt:   sy.now(),
	}
	sy.logger.Info("auth config loaded", "project_ref", projectRef, "session_id", id, "can_mutate", s.canMutate)
	return s, nil
}

// Reload refetches the remote configuration into an existing session, dropping
// unsaved edits. Cached copies are invalidated first so the result is server truth.
// Against a pending submit the later-completing call wins.
func (sy *Synchronizer) Reload(ctx context.Context, s *Session) error {
	if s.Closed() {
		return newError(KindSessionClosed, nil)
	}
	callCtx, done := sessionBound(ctx, s)
	defer done()

	if inv, ok := sy.store.(ports.ConfigInvalidator); ok {
		if err := inv.Invalidate(callCtx, s.projectRef); err != nil {
			sy.logger.Warn("auth config cache invalidate failed", "project_ref", s.projectRef, "session_id", s.id, "err", err)
		}
	}

	values, err := sy.fetch(callCtx, s.projectRef)
	if err != nil {
		if s.Closed() {
			return newError(KindSessionClosed, err)
		}
		sy.logger.Warn("auth config reload failed", "project_ref", s.projectRef, "session_id", s.id, "err", err)
		return err
	}
	canMutate := sy.canMutate(ctx, s.projectRef)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return newError(KindSessionClosed, nil)
	}
	s.state.replace(values)
	s.canMutate = canMutate
	s.loadedAt = sy.now()
	return nil
}

// Submission describes a completed submit.
type Submission struct {
	ProjectRef string        `json:"project_ref"`
	Fields     []types.Field `json:"fields"`
	Payload    types.Payload `json:"payload"`

	// Config is the remote object returned by the update.
	Config types.RemoteConfig `json:"-"`

	// Skipped is set when there was nothing to send.
	Skipped bool `json:"skipped"`
}

// Submit validates the session's current values and writes them to the remote store.
// The payload is the snapshot taken at call time; edits made while the call is in
// flight are kept for the next submit. On failure neither current nor baseline change.
func (sy *Synchronizer) Submit(ctx context.Context, s *Session) (Submission, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Submission{}, newError(KindSessionClosed, nil)
	}
	if s.submitting {
		s.mu.Unlock()
		return Submission{}, newError(KindSubmitInProgress, nil)
	}
	s.submitting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	if !sy.canMutate(ctx, s.projectRef) {
		return Submission{}, newError(KindPermissionDenied, nil)
	}

	snapshot := s.state.Current()
	if fieldErrs := Validate(snapshot); len(fieldErrs) > 0 {
		return Submission{}, &Error{Kind: KindValidationFailed, Fields: fieldErrs}
	}

	fields := snapshot.Keys()
	if sy.changedOnly {
		fields = snapshot.Diff(s.state.Baseline())
		if len(fields) == 0 {
			return Submission{ProjectRef: s.projectRef, Fields: fields, Payload: types.Payload{}, Skipped: true}, nil
		}
	}
	payload, err := fieldmeta.BuildPayload(snapshot, fields)
	if err != nil {
		return Submission{}, newError(KindUnknownField, err)
	}

	callCtx, done := sessionBound(ctx, s)
	defer done()
	cfg, updateErr := sy.store.Update(callCtx, s.projectRef, payload)

	s.mu.Lock()
	closed := s.closed
	if !closed && updateErr == nil {
		submitted := make(types.Values, len(fields))
		for _, f := range fields {
			submitted[f] = snapshot[f]
		}
		s.state.rebaseline(submitted)
	}
	s.mu.Unlock()

	if closed {
		sy.logger.Info("auth config submit discarded", "project_ref", s.projectRef, "session_id", s.id)
		return Submission{}, newError(KindSessionClosed, updateErr)
	}
	if updateErr != nil {
		sy.logger.Warn("auth config submit failed", "project_ref", s.projectRef, "session_id", s.id, "err", updateErr)
		sy.notify(ctx, s, types.NotificationError, MessageSubmitFailed, updateErr.Error())
		return Submission{}, newError(KindSubmitFailed, updateErr)
	}

	sy.logger.Info("auth config submitted", "project_ref", s.projectRef, "session_id", s.id, "fields", len(fields))
	sy.notify(ctx, s, types.NotificationSuccess, MessageSubmitSucceeded, "")
	return Submission{ProjectRef: s.projectRef, Fields: fields, Payload: payload, Config: cfg}, nil
}

// SetField edits one field locally. It is allowed without mutate permission.
func (sy *Synchronizer) SetField(s *Session, key types.Field, value types.Value) error {
	if s.Closed() {
		return newError(KindSessionClosed, nil)
	}
	return s.state.SetField(key, value)
}

// Reset drops unsaved edits.
func (sy *Synchronizer) Reset(s *Session) { s.state.Reset() }

// IsDirty reports whether current differs from the baseline.
func (sy *Synchronizer) IsDirty(s *Session) bool { return s.state.IsDirty() }

func (sy *Synchronizer) notify(ctx context.Context, s *Session, level types.NotificationLevel, msg string, detail string) {
	if sy.notifier == nil {
		return
	}
	sy.notifier.Notify(ctx, types.Notification{
		SessionID:  s.id,
		ProjectRef: s.projectRef,
		Level:      level,
		Message:    msg,
		Detail:     detail,
		At:         sy.now(),
	})
}

// sessionBound derives a context cancelled by either the caller or session teardown.
func sessionBound(ctx context.Context, s *Session) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}
