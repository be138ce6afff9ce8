package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

// MinPollInterval is the shortest reconciliation interval accepted.
const MinPollInterval = 10 * time.Second

// ReconcileResult counts what one reconciliation cycle changed.
type ReconcileResult struct {
	Converted int // pending requests turned into edges
	Pending   int // requests left pending
	Removed   int // edges deleted because the peer reported them gone
	Kept      int // edges confirmed or left alone
}

// Poller converges the follower graph with peers that cannot push state
// back. Each local author is reconciled on its own loop.
type Poller struct {
	store        Store
	registry     *Registry
	client       *PeerClient
	interval     time.Duration
	cycleTimeout time.Duration

	mu    sync.Mutex
	loops map[uuid.UUID]context.CancelFunc
	wg    sync.WaitGroup
}

func NewPoller(store Store, registry *Registry, client *PeerClient, interval, cycleTimeout time.Duration) *Poller {
	if interval < MinPollInterval {
		slog.Warn("Reconcile: poll interval too short, raising it", "interval", interval, "min", MinPollInterval)
		interval = MinPollInterval
	}
	if cycleTimeout <= 0 || cycleTimeout > interval {
		cycleTimeout = interval
	}
	return &Poller{
		store:        store,
		registry:     registry,
		client:       client,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		loops:        make(map[uuid.UUID]context.CancelFunc),
	}
}

// Reconcile runs both passes for one local author. Peers that do not
// answer conclusively change nothing; only store errors are returned.
func (p *Poller) Reconcile(ctx context.Context, authorId uuid.UUID) (ReconcileResult, error) {
	var res ReconcileResult

	// outbound requests: a peer that lists the edge has approved it
	targets, err := p.store.ReadPendingRemoteTargets(authorId)
	if err != nil {
		return res, fmt.Errorf("read pending targets of %s: %w", authorId, err)
	}
	for _, target := range targets {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome := p.poll(ctx, target.Host, target.Id, authorId)
		if outcome != EdgePresent {
			res.Pending++
			continue
		}
		converted, err := p.store.AcceptFollowRequest(authorId, target.Id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}
		if converted {
			res.Converted++
			slog.Info("Reconcile: follow request approved remotely", "author", authorId, "target", target.URL)
		}
	}

	// remote followers: a peer that no longer knows the edge revoked it
	followers, err := p.store.ReadRemoteFollowers(authorId)
	if err != nil {
		return res, fmt.Errorf("read remote followers of %s: %w", authorId, err)
	}
	for _, follower := range followers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome := p.poll(ctx, follower.Host, authorId, follower.Id)
		if outcome != EdgeAbsent {
			res.Kept++
			continue
		}
		deleted, err := p.store.DeleteFollower(follower.Id, authorId)
		if err != nil {
			return res, err
		}
		if deleted {
			res.Removed++
			slog.Info("Reconcile: remote follower gone", "author", authorId, "follower", follower.URL)
		}
	}
	return res, nil
}

func (p *Poller) poll(ctx context.Context, host string, followed, follower uuid.UUID) PollOutcome {
	peer, ok := p.registry.Reachable(host)
	if !ok {
		slog.Debug("Reconcile: peer not registered or inactive", "host", host)
		return Inconclusive
	}
	outcome, err := p.client.FollowerStatus(ctx, peer, followed, follower)
	if err != nil {
		slog.Warn("Reconcile: follower query failed", "peer", peer.Name, "error", err)
	}
	return outcome
}

// Run supervises one reconciliation loop per local author until ctx is
// done. Authors registered later are picked up on the next tick.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Reconcile: starting", "interval", p.interval, "peers", p.registry.Len())
	p.superviseOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			p.wg.Wait()
			slog.Info("Reconcile: stopped")
			return
		case <-ticker.C:
			p.superviseOnce(ctx)
		}
	}
}

func (p *Poller) superviseOnce(ctx context.Context) {
	authors, err := p.store.ReadLocalAuthors()
	if err != nil {
		slog.Error("Reconcile: failed to list local authors", "error", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range authors {
		if _, running := p.loops[a.Id]; running {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		p.loops[a.Id] = cancel
		p.wg.Add(1)
		go p.loop(loopCtx, a.Id)
	}
}

// Stop cancels the loop of one author without touching the others.
func (p *Poller) Stop(authorId uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.loops[authorId]; ok {
		cancel()
		delete(p.loops, authorId)
	}
}

func (p *Poller) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.loops {
		cancel()
		delete(p.loops, id)
	}
}

func (p *Poller) loop(ctx context.Context, authorId uuid.UUID) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.cycle(ctx, authorId)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) cycle(ctx context.Context, authorId uuid.UUID) {
	cycleCtx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()

	res, err := p.Reconcile(cycleCtx, authorId)
	if err != nil && ctx.Err() == nil {
		slog.Error("Reconcile: cycle failed", "author", authorId, "error", err)
		return
	}
	if res.Converted > 0 || res.Removed > 0 {
		slog.Info("Reconcile: cycle done", "author", authorId, "converted", res.Converted, "removed", res.Removed,
			"pending", res.Pending, "kept", res.Kept)
	}
}
