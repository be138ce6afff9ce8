package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/deemkeen/plaza/domain"
	"golang.org/x/sync/errgroup"
)

// Report counts what one dispatch did.
type Report struct {
	LocalDelivered  int `json:"localDelivered"`
	RemoteDelivered int `json:"remoteDelivered"`
	RemoteFailed    int `json:"remoteFailed"`
	RemoteSkipped   int `json:"remoteSkipped"`
}

// Dispatcher hands an activity to its audience. Local recipients are
// written synchronously and their failures returned; remote peers are
// pushed to concurrently, best effort, at most once.
type Dispatcher struct {
	store      Store
	processor  *Processor
	registry   *Registry
	client     *PeerClient
	breaker    *Breaker
	normalizer *Normalizer
	workers    int

	background sync.WaitGroup
}

func NewDispatcher(store Store, processor *Processor, registry *Registry, client *PeerClient, breaker *Breaker, normalizer *Normalizer, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:      store,
		processor:  processor,
		registry:   registry,
		client:     client,
		breaker:    breaker,
		normalizer: normalizer,
		workers:    workers,
	}
}

// Dispatch delivers act to aud and waits for the remote pushes to finish.
// Only local delivery failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, act Activity, aud Audience) (Report, error) {
	report, err := d.deliverLocal(ctx, act, aud.Local)
	remote := d.deliverRemote(ctx, act, aud.Remote)
	report.RemoteDelivered = remote.RemoteDelivered
	report.RemoteFailed = remote.RemoteFailed
	report.RemoteSkipped = remote.RemoteSkipped
	return report, err
}

// DispatchAsync delivers locally like Dispatch but pushes to peers in the
// background. The returned report only covers local delivery. Wait blocks
// until the background pushes are done.
func (d *Dispatcher) DispatchAsync(ctx context.Context, act Activity, aud Audience) (Report, error) {
	report, err := d.deliverLocal(ctx, act, aud.Local)
	if len(aud.Remote) > 0 {
		d.background.Add(1)
		go func() {
			defer d.background.Done()
			d.deliverRemote(context.WithoutCancel(ctx), act, aud.Remote)
		}()
	}
	return report, err
}

func (d *Dispatcher) Wait() {
	d.background.Wait()
}

func (d *Dispatcher) deliverLocal(ctx context.Context, act Activity, recipients []domain.Author) (Report, error) {
	var report Report
	if len(recipients) == 0 {
		return report, nil
	}

	if post, ok := act.(*PostActivity); ok {
		origin := orDefault(post.Origin, post.Id)
		entries := make([]domain.InboxEntry, 0, len(recipients))
		for _, r := range recipients {
			entry, err := newEntry(r.Id, TypePost, origin, post)
			if err != nil {
				return report, err
			}
			entries = append(entries, *entry)
		}
		n, err := d.store.CreateInboxEntries(entries)
		if err != nil {
			return report, fmt.Errorf("local delivery of %s: %w", origin, err)
		}
		report.LocalDelivered = n
		return report, nil
	}

	var errs []error
	for _, r := range recipients {
		_, err := d.processor.Ingest(ctx, r.Id, act)
		switch {
		case err == nil:
			report.LocalDelivered++
		case errors.Is(err, domain.ErrConflict):
			errs = append(errs, err)
		default:
			errs = append(errs, fmt.Errorf("local delivery to %s: %w", r.Id, err))
		}
	}
	return report, errors.Join(errs...)
}

func (d *Dispatcher) deliverRemote(ctx context.Context, act Activity, remote map[string][]domain.Author) Report {
	var (
		mu     sync.Mutex
		report Report
	)
	count := func(delivered, failed, skipped int) {
		mu.Lock()
		report.RemoteDelivered += delivered
		report.RemoteFailed += failed
		report.RemoteSkipped += skipped
		mu.Unlock()
	}
	if len(remote) == 0 {
		return report
	}

	outbound := d.externalize(act)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for host, recipients := range remote {
		peer, ok := d.registry.Reachable(host)
		if !ok {
			slog.Info("Delivery: peer not registered or inactive, skipping", "host", host, "recipients", len(recipients))
			count(0, 0, len(recipients))
			continue
		}
		g.Go(func() error {
			delivered, failed, skipped := d.pushToPeer(ctx, peer, outbound, recipients)
			count(delivered, failed, skipped)
			return nil
		})
	}
	g.Wait()

	slog.Info("Delivery: remote fan-out done", "type", act.Kind(),
		"delivered", report.RemoteDelivered, "failed", report.RemoteFailed, "skipped", report.RemoteSkipped)
	return report
}

func (d *Dispatcher) pushToPeer(ctx context.Context, peer Peer, act Activity, recipients []domain.Author) (delivered, failed, skipped int) {
	for i, r := range recipients {
		if !d.breaker.Allow(peer.Host) {
			skipped = len(recipients) - i
			slog.Warn("Delivery: circuit open, skipping peer", "peer", peer.Name, "recipients", skipped)
			return
		}
		env, err := NewEnvelope(r.URL, act)
		if err == nil {
			err = d.client.Push(ctx, peer, r.Id, env)
		}
		if err != nil {
			failed++
			if d.breaker.Failure(peer.Host) {
				slog.Warn("Delivery: opening circuit", "peer", peer.Name)
			}
			slog.Error("Delivery: push failed", "peer", peer.Name, "recipient", r.URL, "error", err)
			continue
		}
		d.breaker.Success(peer.Host)
		delivered++
	}
	return
}

// externalize returns act with locally hosted media made fetchable for
// peers. act is returned unchanged when it has none.
func (d *Dispatcher) externalize(act Activity) Activity {
	switch a := act.(type) {
	case *PostActivity:
		if d.normalizer.ReferencesLocalMedia(a.Content) {
			copied := *a
			copied.Content = d.normalizer.Externalize(a.Content)
			return &copied
		}
	case *CommentActivity:
		if d.normalizer.ReferencesLocalMedia(a.Comment) {
			copied := *a
			copied.Comment = d.normalizer.Externalize(a.Comment)
			return &copied
		}
	}
	return act
}
