package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/activity"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultWebhookTimeout   = 5 * time.Second
	defaultDispatchBatch    = 100
)

// Dispatcher tails the activity log and reacts outside the engine's
// transactions: it applies configured auto-start rules and delivers
// outbound webhooks. Stage orchestration lives here, not in the
// transition functions.
type Dispatcher struct {
	Engine   workflow.Engine
	Interval time.Duration

	client     *http.Client
	mu         sync.Mutex
	autoCursor int64
	hookCursor map[int]int64
}

// NewDispatcher seeds cursors at the current tail so old entries are not
// replayed on restart.
func NewDispatcher(e workflow.Engine) *Dispatcher {
	tail, err := e.Repo.LatestActivityID(context.Background())
	if err != nil {
		log.Printf("dispatch: init cursor failed: %v", err)
		tail = 0
	}
	d := &Dispatcher{
		Engine:     e,
		Interval:   defaultDispatchInterval,
		client:     &http.Client{Timeout: defaultWebhookTimeout},
		autoCursor: tail,
		hookCursor: make(map[int]int64),
	}
	if e.Config != nil {
		for i := range e.Config.Webhooks {
			d.hookCursor[i] = tail
		}
	}
	return d
}

// Start runs the dispatch loop until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()
		for {
			d.Tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Tick processes one batch. Exposed so tests can drive the dispatcher
// without the timer.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.applyAutoStart(ctx)
	if d.Engine.Config != nil {
		for i, hook := range d.Engine.Config.Webhooks {
			if hook.Enabled != nil && !*hook.Enabled {
				continue
			}
			if strings.TrimSpace(hook.URL) == "" {
				continue
			}
			d.deliverWebhook(ctx, i, hook)
		}
	}
}

func (d *Dispatcher) applyAutoStart(ctx context.Context) {
	d.mu.Lock()
	cursor := d.autoCursor
	d.mu.Unlock()
	entries, err := d.Engine.Repo.ActivityAfter(ctx, cursor, defaultDispatchBatch)
	if err != nil {
		log.Printf("dispatch: fetch activity failed: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.Action == activity.ActionPushToClient && entry.EntityKind == "version" {
			if err := d.autoStartDependent(ctx, entry.EntityID); err != nil {
				log.Printf("dispatch: auto-start for version %s failed: %v", entry.EntityID, err)
			}
		}
		d.mu.Lock()
		d.autoCursor = entry.ID
		d.mu.Unlock()
	}
}

// autoStartDependent starts the configured dependent stage in the same
// room when a stage-owned version is pushed. Already-started dependents
// are left alone.
func (d *Dispatcher) autoStartDependent(ctx context.Context, versionID string) error {
	cfg := d.Engine.Config
	if cfg == nil || len(cfg.Workflow.AutoStart) == 0 {
		return nil
	}
	v, err := d.Engine.Repo.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if v.OwnerKind != "stage" {
		return nil
	}
	stage, err := d.Engine.Repo.GetStage(ctx, v.OwnerID)
	if err != nil {
		return err
	}
	target, ok := cfg.Workflow.AutoStart[stage.Type]
	if !ok {
		return nil
	}
	dep, err := d.Engine.Repo.GetStageByType(ctx, stage.RoomID, target)
	if err != nil {
		return err
	}
	if dep.Status != domain.StageNotStarted {
		return nil
	}
	// System action: no actor on the entry.
	_, err = d.Engine.StartStage(ctx, dep.ID, "")
	return err
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	TS         string          `json:"ts"`
	Detail     json.RawMessage `json:"detail"`
}

func (d *Dispatcher) deliverWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	d.mu.Lock()
	cursor := d.hookCursor[idx]
	d.mu.Unlock()
	entries, err := d.Engine.Repo.ActivityAfter(ctx, cursor, defaultDispatchBatch)
	if err != nil {
		log.Printf("webhook: fetch activity failed: %v", err)
		return
	}
	filter := newActionFilter(hook.Events)
	for _, entry := range entries {
		if filter.match(entry.Action) {
			if err := d.postEntry(ctx, hook, entry); err != nil {
				log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
				return
			}
		}
		d.mu.Lock()
		d.hookCursor[idx] = entry.ID
		d.mu.Unlock()
	}
}

func (d *Dispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, entry domain.ActivityEntry) error {
	detail := json.RawMessage("{}")
	if json.Valid([]byte(entry.Detail)) {
		detail = json.RawMessage(entry.Detail)
	}
	actor := ""
	if entry.ActorID != nil {
		actor = *entry.ActorID
	}
	data, err := json.Marshal(webhookEvent{
		ID:         entry.ID,
		Action:     entry.Action,
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		ActorID:    actor,
		TS:         entry.TS,
		Detail:     detail,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ResidentOne-Action", entry.Action)
	req.Header.Set("X-ResidentOne-Delivery", fmt.Sprintf("%d", entry.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-ResidentOne-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	if len(actions) == 0 {
		return actionFilter{all: true}
	}
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		key := strings.TrimSpace(a)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
