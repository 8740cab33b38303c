package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"virtufit-backend/internal/cache"
	"virtufit-backend/internal/relay"
)

type CacheRecorder interface {
	RecordCacheLookup(kind string, hit bool)
}

type GenerationConfig struct {
	PollInterval time.Duration
	TimeBudget   time.Duration
}

// Result is what a generation request resolves to. Snapshot.ResultURL is the
// URL handed to the viewer; SourceURL is the provider URL when the model was
// archived.
type Result struct {
	Snapshot  *relay.Snapshot
	SourceURL string
	Cached    bool
}

// GenerationService runs the request flow around the relay: session cache,
// submit, await, archive, terminal cache.
type GenerationService struct {
	relay    *relay.Relay
	cache    cache.Store
	archive  *ArchiveService
	recorder CacheRecorder
	cfg      GenerationConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerationService wires the flow. archive and recorder may be nil.
func NewGenerationService(
	r *relay.Relay,
	store cache.Store,
	archive *ArchiveService,
	recorder CacheRecorder,
	cfg GenerationConfig,
	logger *zap.Logger,
) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = relay.DefaultPollInterval
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = relay.DefaultTimeBudget
	}
	return &GenerationService{
		relay:    r,
		cache:    store,
		archive:  archive,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "generation")),
		now:      time.Now,
	}
}

func (s *GenerationService) ProviderName() string {
	return s.relay.Provider().Name()
}

// Generate turns an image into a model. An identical image already completed
// for the session is answered from the cache; one still in flight is resumed
// rather than submitted again. When the task outlives the time budget the
// result is a processing snapshot carrying the task id.
//
// Errors raised after the provider accepted the job come with a non-nil Result
// so the caller can report the task id.
func (s *GenerationService) Generate(ctx context.Context, sessionID string, img relay.Image, opts relay.SubmitOptions) (*Result, error) {
	if err := s.relay.Provider().CheckCredentials(); err != nil {
		return nil, err
	}

	hash := cache.HashImage(img)
	if entry := s.lookupSession(ctx, sessionID); entry != nil && entry.ImageHash == hash {
		if entry.ModelURL != "" {
			s.logger.Info("serving cached model",
				zap.String("session_id", sessionID),
				zap.String("task_id", entry.TaskID))
			return &Result{Snapshot: entry.snapshot(s.ProviderName()), SourceURL: entry.SourceURL, Cached: true}, nil
		}
		if entry.TaskID != "" {
			stored := s.lookupTask(ctx, entry.TaskID)
			switch {
			case stored == nil:
				s.logger.Info("resuming in-flight task for identical image",
					zap.String("session_id", sessionID),
					zap.String("task_id", entry.TaskID))
				return s.await(ctx, sessionID, hash, entry.TaskID)
			case stored.Status == relay.StatusSucceeded:
				return &Result{Snapshot: stored, Cached: true}, nil
			default:
				s.logger.Info("previous task for identical image ended unsuccessfully, submitting again",
					zap.String("session_id", sessionID),
					zap.String("task_id", entry.TaskID),
					zap.String("status", string(stored.Status)))
			}
		}
	}

	handle, err := s.relay.Submit(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generation task submitted",
		zap.String("session_id", sessionID),
		zap.String("task_id", handle.TaskID))

	if sessionID != "" {
		pending := &cache.Entry{SessionID: sessionID, TaskID: handle.TaskID, ImageHash: hash}
		if err := s.cache.PutSession(ctx, pending); err != nil {
			s.logger.Warn("failed to record pending task", zap.Error(err))
		}
	}

	return s.await(ctx, sessionID, hash, handle.TaskID)
}

// Resume continues waiting on a task submitted by an earlier request.
func (s *GenerationService) Resume(ctx context.Context, sessionID, taskID string) (*Result, error) {
	if err := relay.ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	if err := s.relay.Provider().CheckCredentials(); err != nil {
		return nil, err
	}
	if snap := s.lookupTask(ctx, taskID); snap != nil {
		return &Result{Snapshot: snap, Cached: true}, nil
	}

	var hash string
	if entry := s.lookupSession(ctx, sessionID); entry != nil && entry.TaskID == taskID {
		hash = entry.ImageHash
	}
	return s.await(ctx, sessionID, hash, taskID)
}

// Status is a single non-blocking read.
func (s *GenerationService) Status(ctx context.Context, taskID string) (*Result, error) {
	if err := relay.ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	if err := s.relay.Provider().CheckCredentials(); err != nil {
		return nil, err
	}
	if snap := s.lookupTask(ctx, taskID); snap != nil {
		return &Result{Snapshot: snap, Cached: true}, nil
	}

	snap, err := s.relay.Poll(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "", "", snap), nil
}

// RecordCallback normalizes a provider webhook payload and stores it when
// terminal.
func (s *GenerationService) RecordCallback(ctx context.Context, body []byte) (*relay.Snapshot, error) {
	parser, ok := s.relay.Provider().(relay.CallbackParser)
	if !ok {
		return nil, relay.NewValidationError("%s does not send callbacks", s.ProviderName())
	}
	pt, err := parser.ParseCallback(body)
	if err != nil {
		return nil, relay.NewValidationError("invalid callback payload: %v", err)
	}
	if err := relay.ValidateTaskID(pt.ID); err != nil {
		return nil, err
	}

	snap, ok := s.relay.Normalize(pt)
	if !ok {
		return nil, relay.NewValidationError("callback status %q is not recognized", pt.RawStatus)
	}
	s.logger.Info("provider callback received",
		zap.String("task_id", snap.TaskID),
		zap.String("status", string(snap.Status)))

	return s.finish(ctx, "", "", snap).Snapshot, nil
}

func (s *GenerationService) await(ctx context.Context, sessionID, hash, taskID string) (*Result, error) {
	snap, err := s.relay.AwaitCompletion(ctx, taskID, s.cfg.PollInterval, s.cfg.TimeBudget)
	if err != nil {
		return &Result{Snapshot: &relay.Snapshot{
			TaskID:   taskID,
			Provider: s.ProviderName(),
			Status:   relay.StatusRunning,
			PolledAt: s.now(),
		}}, err
	}
	return s.finish(ctx, sessionID, hash, snap), nil
}

// finish archives and caches a terminal snapshot. The stored snapshot wins
// over snap when another request finished the task first.
func (s *GenerationService) finish(ctx context.Context, sessionID, hash string, snap *relay.Snapshot) *Result {
	result := &Result{Snapshot: snap}
	if !snap.IsTerminal() {
		return result
	}

	if snap.Status == relay.StatusSucceeded && s.archive != nil {
		archived, err := s.archive.Archive(ctx, snap)
		if err != nil {
			s.logger.Warn("archive failed, keeping provider url",
				zap.String("task_id", snap.TaskID),
				zap.Error(err))
		} else {
			copied := *snap
			copied.ResultURL = archived
			result.Snapshot = &copied
			result.SourceURL = snap.ResultURL
		}
	}

	if err := s.cache.PutTask(ctx, result.Snapshot); err != nil {
		s.logger.Warn("failed to cache terminal snapshot", zap.Error(err))
	} else if stored, err := s.cache.GetTask(ctx, snap.TaskID); err == nil && stored.ResultURL != result.Snapshot.ResultURL {
		result.Snapshot = stored
		result.SourceURL = ""
	}

	if sessionID != "" && hash != "" && result.Snapshot.Status != relay.StatusSucceeded {
		// Drop the pending task so the next identical request submits again.
		if err := s.cache.PutSession(ctx, &cache.Entry{SessionID: sessionID, ImageHash: hash}); err != nil {
			s.logger.Warn("failed to clear pending session task", zap.Error(err))
		}
	}
	if sessionID != "" && hash != "" && result.Snapshot.Status == relay.StatusSucceeded {
		entry := &cache.Entry{
			SessionID:    sessionID,
			TaskID:       snap.TaskID,
			ImageHash:    hash,
			ModelURL:     result.Snapshot.ResultURL,
			SourceURL:    result.SourceURL,
			ThumbnailURL: result.Snapshot.ThumbnailURL,
			CompletedAt:  s.now(),
		}
		if err := s.cache.PutSession(ctx, entry); err != nil {
			s.logger.Warn("failed to cache session result", zap.Error(err))
		}
	}
	return result
}

func (s *GenerationService) lookupSession(ctx context.Context, sessionID string) *cachedEntry {
	if sessionID == "" {
		return nil
	}
	entry, err := s.cache.GetSession(ctx, sessionID)
	s.recordLookup("session", err == nil)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("session cache read failed", zap.Error(err))
		}
		return nil
	}
	return &cachedEntry{entry}
}

func (s *GenerationService) lookupTask(ctx context.Context, taskID string) *relay.Snapshot {
	snap, err := s.cache.GetTask(ctx, taskID)
	s.recordLookup("task", err == nil)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("task cache read failed", zap.Error(err))
		}
		return nil
	}
	return snap
}

func (s *GenerationService) recordLookup(kind string, hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCacheLookup(kind, hit)
	}
}

type cachedEntry struct {
	*cache.Entry
}

func (e *cachedEntry) snapshot(provider string) *relay.Snapshot {
	return &relay.Snapshot{
		TaskID:       e.TaskID,
		Provider:     provider,
		Status:       relay.StatusSucceeded,
		Progress:     100,
		ResultURL:    e.ModelURL,
		ThumbnailURL: e.ThumbnailURL,
		PolledAt:     e.CompletedAt,
	}
}
