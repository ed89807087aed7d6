// -----------------------------------------------------------------------
// Generation orchestrator - drafts once, then enriches every draft with an image
// -----------------------------------------------------------------------

package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/models"
	"github.com/ternarybob/adforge/internal/services/events"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
)

// Options tunes the orchestrator
type Options struct {
	// MaxConcurrentImages caps in-flight image calls. 0 means one call per item at once.
	MaxConcurrentImages int
}

// Orchestrator owns the single active generation run.
//
// Every mutation of the run happens under mu, including the token check that
// discards image outcomes from superseded runs. Snapshots are published under
// the same lock so subscribers observe versions in order.
type Orchestrator struct {
	scripts      interfaces.ScriptService
	images       interfaces.ImageService
	eventService interfaces.EventService
	logger       arbor.ILogger
	options      Options

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	state     models.RunSnapshot
	cancelRun context.CancelFunc
	closed    bool
	feed      *events.Feed[models.RunSnapshot]
}

// NewOrchestrator creates an idle orchestrator. eventService may be nil.
func NewOrchestrator(
	scripts interfaces.ScriptService,
	images interfaces.ImageService,
	eventService interfaces.EventService,
	logger arbor.ILogger,
	options Options,
) *Orchestrator {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		scripts:      scripts,
		images:       images,
		eventService: eventService,
		logger:       logger,
		options:      options,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		state: models.RunSnapshot{
			Status: models.RunStatusIdle,
			Items:  []models.CampaignItem{},
		},
		feed: events.NewFeed[models.RunSnapshot](),
	}
}

// RunGeneration starts a new run, replacing any previous one.
//
// Drafting runs synchronously on the caller's goroutine. On success the image
// phase is dispatched in the background and the returned Run tracks it.
// Run-level failures return ErrInvalidInput, ErrEmptyResult, *DraftingFailedError
// or ErrRunSuperseded.
func (o *Orchestrator) RunGeneration(ctx context.Context, productDescription, audiences string) (*Run, error) {
	productDescription = strings.TrimSpace(productDescription)
	audiences = strings.TrimSpace(audiences)
	if productDescription == "" || audiences == "" {
		return nil, ErrInvalidInput
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}

	if o.cancelRun != nil {
		o.cancelRun()
	}
	runCtx, cancelRun := context.WithCancel(o.baseCtx)
	o.cancelRun = cancelRun

	now := time.Now()
	token := o.state.Token + 1
	o.state = models.RunSnapshot{
		Token:              token,
		Status:             models.RunStatusDrafting,
		ProductDescription: productDescription,
		Audiences:          audiences,
		Items:              []models.CampaignItem{},
		Version:            o.state.Version,
		StartedAt:          &now,
	}
	o.publishLocked()
	o.mu.Unlock()

	o.logger.Info().
		Int64("token", int64(token)).
		Str("audiences", audiences).
		Msg("Generation run started")
	o.emit(interfaces.EventRunStarted, token, models.RunStatusDrafting, "", 0)

	// Drafting follows the caller's context but is also abandoned once superseded
	draftCtx, cancelDraft := context.WithCancel(ctx)
	stopDraft := context.AfterFunc(runCtx, cancelDraft)
	drafts, err := o.scripts.GenerateDrafts(draftCtx, productDescription, audiences)
	stopDraft()
	cancelDraft()

	o.mu.Lock()
	if o.state.Token != token {
		o.mu.Unlock()
		o.logger.Debug().Int64("token", int64(token)).Msg("Discarding drafts of superseded run")
		return nil, ErrRunSuperseded
	}

	if err != nil {
		runErr := &DraftingFailedError{Message: err.Error(), Err: err}
		o.failLocked(runErr.Error())
		o.mu.Unlock()

		o.logger.Error().Err(err).Int64("token", int64(token)).Msg("Drafting failed")
		o.emit(interfaces.EventRunFinished, token, models.RunStatusFailed, runErr.Error(), 0)
		return nil, runErr
	}

	if len(drafts) == 0 {
		o.failLocked(ErrEmptyResult.Error())
		o.mu.Unlock()

		o.logger.Warn().Int64("token", int64(token)).Msg("Drafting returned no campaigns")
		o.emit(interfaces.EventRunFinished, token, models.RunStatusFailed, ErrEmptyResult.Error(), 0)
		return nil, ErrEmptyResult
	}

	items := make([]models.CampaignItem, len(drafts))
	prompts := make([]string, len(drafts))
	for i, draft := range drafts {
		items[i] = models.NewCampaignItem(draft)
		prompts[i] = draft.ImagePrompt
	}
	o.state.Items = items
	o.state.Status = models.RunStatusImagesInFlight
	o.publishLocked()
	drafted := o.state.Clone()
	o.mu.Unlock()

	o.logger.Info().
		Int64("token", int64(token)).
		Int("drafts", len(drafts)).
		Msg("Drafts ready, dispatching image calls")

	run := &Run{
		token:        token,
		drafted:      drafted,
		orchestrator: o,
		done:         make(chan struct{}),
	}

	common.SafeGo(o.logger, "campaignImages", func() {
		o.dispatchImages(runCtx, token, prompts, run.done)
	})

	return run, nil
}

// dispatchImages issues one image call per prompt and closes done when all have returned
func (o *Orchestrator) dispatchImages(ctx context.Context, token uint64, prompts []string, done chan struct{}) {
	defer close(done)

	var g errgroup.Group
	if o.options.MaxConcurrentImages > 0 {
		g.SetLimit(o.options.MaxConcurrentImages)
	}

	for i, prompt := range prompts {
		g.Go(func() error {
			if ctx.Err() != nil {
				o.applyImageOutcome(token, i, "", ctx.Err())
				return nil
			}
			ref, err := o.generateImage(ctx, prompt)
			o.applyImageOutcome(token, i, ref, err)
			return nil
		})
	}

	_ = g.Wait()
}

// generateImage isolates a panicking image call to its own item
func (o *Orchestrator) generateImage(ctx context.Context, prompt string) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image generation panicked: %v", r)
		}
	}()
	return o.images.GenerateImage(ctx, prompt)
}

// applyImageOutcome records the result of one image call on its own item.
// Outcomes for other runs, and for items that already settled, are ignored.
func (o *Orchestrator) applyImageOutcome(token uint64, index int, ref string, err error) {
	o.mu.Lock()

	if token != o.state.Token {
		o.mu.Unlock()
		o.logger.Debug().
			Int64("token", int64(token)).
			Int("index", index).
			Msg("Discarding image outcome of superseded run")
		return
	}
	if index < 0 || index >= len(o.state.Items) {
		o.mu.Unlock()
		return
	}

	item := &o.state.Items[index]
	if item.Image.IsSettled() {
		o.mu.Unlock()
		return
	}

	if err != nil {
		item.Image = models.ImageState{Status: models.ImageStatusFailed, Error: err.Error()}
		o.logger.Warn().
			Err(err).
			Int("index", index).
			Str("audience", item.Audience).
			Msg("Image generation failed")
	} else {
		item.Image = models.ImageState{Status: models.ImageStatusReady, Ref: ref}
	}

	finished := true
	for _, it := range o.state.Items {
		if !it.Image.IsSettled() {
			finished = false
			break
		}
	}
	if finished {
		now := time.Now()
		o.state.Status = models.RunStatusDone
		o.state.CompletedAt = &now
	}
	o.publishLocked()
	_, ready, failed := o.state.Counts()
	o.mu.Unlock()

	if finished {
		o.logger.Info().
			Int64("token", int64(token)).
			Int("ready", ready).
			Int("failed", failed).
			Msg("Generation run complete")
		o.emit(interfaces.EventRunFinished, token, models.RunStatusDone, "", ready+failed)
	}
}

// failLocked moves the current run to Failed with no items. Caller holds mu.
func (o *Orchestrator) failLocked(message string) {
	now := time.Now()
	o.state.Status = models.RunStatusFailed
	o.state.Error = message
	o.state.Items = []models.CampaignItem{}
	o.state.CompletedAt = &now
	o.publishLocked()
}

// publishLocked bumps the version and pushes a copy to subscribers. Caller holds mu.
func (o *Orchestrator) publishLocked() {
	o.state.Version++
	o.feed.Publish(o.state.Clone())
}

func (o *Orchestrator) emit(eventType interfaces.EventType, token uint64, status models.RunStatus, errMsg string, items int) {
	if o.eventService == nil {
		return
	}
	payload := map[string]interface{}{
		"token":  token,
		"status": string(status),
		"items":  items,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if err := o.eventService.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		o.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish run event")
	}
}

// Snapshot returns a copy of the current run
func (o *Orchestrator) Snapshot() models.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Subscribe returns a channel that always holds the latest snapshot, starting with the current one.
// Call the returned func to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan models.RunSnapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.feed.Subscribe(o.state.Clone())
}

// Close cancels the active run and closes every subscription
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.cancelRun != nil {
		o.cancelRun()
	}
	o.baseCancel()
	o.feed.Close()
	return nil
}
