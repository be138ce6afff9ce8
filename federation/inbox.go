package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Result describes what ingesting one activity stored.
type Result struct {
	Type   ActivityType `json:"type"`
	Id     uuid.UUID    `json:"id"`
	Object string       `json:"object,omitempty"`
}

// Processor materializes inbound activities for a local recipient. Every
// branch writes its domain object and the inbox entry in one transaction.
type Processor struct {
	store      Store
	codec      *Codec
	registry   *Registry
	client     *PeerClient
	normalizer *Normalizer
	authors    *ttlcache.Cache[uuid.UUID, *domain.Author]
}

func NewProcessor(store Store, codec *Codec, registry *Registry, client *PeerClient, normalizer *Normalizer) *Processor {
	return &Processor{
		store:      store,
		codec:      codec,
		registry:   registry,
		client:     client,
		normalizer: normalizer,
		authors: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, *domain.Author](10*time.Minute),
			ttlcache.WithCapacity[uuid.UUID, *domain.Author](4096),
		),
	}
}

// IngestEnvelope decodes raw, which may be an inbox envelope or a bare
// activity, and ingests its items in order. Nothing is stored unless every
// item decodes and validates. Processing stops at the first failing item.
func (p *Processor) IngestEnvelope(ctx context.Context, recipientId uuid.UUID, raw []byte) ([]Result, error) {
	acts, err := DecodeInbox(raw)
	if err != nil {
		slog.Warn("Inbox: rejected payload", "recipient", recipientId, "error", err)
		return nil, err
	}
	results := make([]Result, 0, len(acts))
	for _, act := range acts {
		res, err := p.Ingest(ctx, recipientId, act)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Ingest stores act for the local author recipientId.
func (p *Processor) Ingest(ctx context.Context, recipientId uuid.UUID, act Activity) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	recipient, err := p.store.ReadAuthorById(recipientId)
	if err != nil {
		return Result{}, err
	}
	if recipient.IsRemote {
		return Result{}, fmt.Errorf("recipient %s is not local: %w", recipientId, domain.ErrNotFound)
	}

	var res Result
	switch a := act.(type) {
	case *FollowActivity:
		res, err = p.ingestFollow(recipient, a)
	case *LikeActivity:
		res, err = p.ingestLike(recipient, a)
	case *CommentActivity:
		res, err = p.ingestComment(ctx, recipient, a)
	case *PostActivity:
		res, err = p.ingestPost(recipient, a)
	default:
		err = fmt.Errorf("%w: unsupported activity %T", domain.ErrValidation, act)
	}

	switch {
	case err == nil:
		slog.Info("Inbox: stored", "type", act.Kind(), "recipient", recipient.Id, "object", res.Object)
	case errors.Is(err, domain.ErrConflict):
		slog.Info("Inbox: duplicate ignored", "type", act.Kind(), "recipient", recipient.Id)
	default:
		slog.Warn("Inbox: rejected", "type", act.Kind(), "recipient", recipient.Id, "error", err)
	}
	return res, err
}

// EnsureRemoteAuthor returns the author desc describes, creating a remote
// author record the first time it is seen. Local ids are looked up only.
func (p *Processor) EnsureRemoteAuthor(desc AuthorDesc) (*domain.Author, error) {
	if err := validate.Struct(&desc); err != nil {
		return nil, fmt.Errorf("%w: author descriptor: %v", domain.ErrValidation, err)
	}
	ref, err := p.codec.ParseAuthor(desc.Id)
	if err != nil {
		return nil, err
	}
	if item := p.authors.Get(ref.AuthorId); item != nil {
		return p.claimedBy(item.Value(), ref)
	}
	if p.codec.IsLocal(ref.Host) {
		author, err := p.store.ReadAuthorById(ref.AuthorId)
		if err != nil {
			return nil, err
		}
		if _, err := p.claimedBy(author, ref); err != nil {
			return nil, err
		}
		p.authors.Set(author.Id, author, ttlcache.DefaultTTL)
		return author, nil
	}

	host := ref.Host
	if desc.Host != "" {
		host = NormalizeHost(desc.Host)
	}
	author, err := p.store.EnsureAuthor(&domain.Author{
		Id:           ref.AuthorId,
		DisplayName:  desc.DisplayName,
		Github:       desc.Github,
		ProfileImage: desc.ProfileImage,
		Host:         host,
		URL:          p.codec.AuthorURL(ref.Host, ref.AuthorId),
		IsRemote:     true,
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.claimedBy(author, ref); err != nil {
		return nil, err
	}
	p.authors.Set(author.Id, author, ttlcache.DefaultTTL)
	return author, nil
}

// claimedBy rejects a descriptor whose host does not own the stored author
// with that id. Local authors are only named by this node's URLs, remote ones
// only by the URL they were first seen under.
func (p *Processor) claimedBy(author *domain.Author, ref Ref) (*domain.Author, error) {
	if p.codec.IsLocal(ref.Host) {
		if author.IsRemote {
			return nil, fmt.Errorf("%w: author %s is not local", domain.ErrValidation, author.Id)
		}
		return author, nil
	}
	if !author.IsRemote || author.URL != p.codec.AuthorURL(ref.Host, ref.AuthorId) {
		return nil, fmt.Errorf("%w: author %s does not belong to %s", domain.ErrValidation, author.Id, ref.Host)
	}
	return author, nil
}

func (p *Processor) ingestFollow(recipient *domain.Author, a *FollowActivity) (Result, error) {
	target, err := p.codec.ParseAuthor(a.Object.Id)
	if err != nil {
		return Result{}, err
	}
	if target.AuthorId != recipient.Id {
		return Result{}, fmt.Errorf("%w: follow object %s is not the inbox owner", domain.ErrValidation, a.Object.Id)
	}
	actor, err := p.EnsureRemoteAuthor(a.Actor)
	if err != nil {
		return Result{}, err
	}
	if actor.Id == recipient.Id {
		return Result{}, fmt.Errorf("%w: author cannot follow themselves", domain.ErrValidation)
	}

	entry, err := newEntry(recipient.Id, TypeFollow, actor.URL, a)
	if err != nil {
		return Result{}, err
	}
	req := &domain.FollowRequest{FromId: actor.Id, ToId: recipient.Id}
	if err := p.store.CreateFollowRequest(req, entry); err != nil {
		return Result{}, err
	}
	return Result{Type: TypeFollow, Id: req.Id, Object: actor.URL}, nil
}

func (p *Processor) ingestLike(recipient *domain.Author, a *LikeActivity) (Result, error) {
	post, comment, err := p.resolveLikeTarget(a.Object)
	if err != nil {
		return Result{}, err
	}
	liker, err := p.EnsureRemoteAuthor(a.Author)
	if err != nil {
		return Result{}, err
	}

	like := &domain.Like{AuthorId: liker.Id, PostId: post.Id, Object: a.Object}
	if comment != nil {
		like.CommentId = &comment.Id
	}
	entry, err := newEntry(recipient.Id, TypeLike, a.Object, a)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.CreateLike(like, entry); err != nil {
		return Result{}, err
	}
	return Result{Type: TypeLike, Id: like.Id, Object: a.Object}, nil
}

// resolveLikeTarget finds the post, and comment if any, object names. Only
// content this node holds can be liked.
func (p *Processor) resolveLikeTarget(object string) (*domain.Post, *domain.Comment, error) {
	ref, err := p.codec.Parse(object)
	if err != nil {
		return nil, nil, err
	}
	if ref.Kind == KindAuthor {
		return nil, nil, fmt.Errorf("%w: cannot like an author", domain.ErrValidation)
	}
	postURL := p.codec.PostURL(ref.Host, ref.AuthorId, ref.PostId)

	var post *domain.Post
	if p.codec.IsLocal(ref.Host) {
		post, err = p.store.ReadPostById(ref.PostId)
	} else {
		post, err = p.store.ReadPostByOrigin(postURL)
	}
	if err != nil {
		return nil, nil, err
	}
	if ref.Kind != KindComment {
		return post, nil, nil
	}
	comment, err := p.store.ReadCommentById(ref.CommentId)
	if err != nil {
		return nil, nil, err
	}
	if comment.PostId != post.Id {
		return nil, nil, fmt.Errorf("comment %s on another post: %w", ref.CommentId, domain.ErrNotFound)
	}
	return post, comment, nil
}

func (p *Processor) ingestComment(ctx context.Context, recipient *domain.Author, a *CommentActivity) (Result, error) {
	post, err := p.resolveCommentTarget(ctx, a.Post)
	if err != nil {
		return Result{}, err
	}
	commenter, err := p.EnsureRemoteAuthor(a.Author)
	if err != nil {
		return Result{}, err
	}

	comment := &domain.Comment{
		Id:          uuid.New(),
		PostId:      post.Id,
		AuthorId:    commenter.Id,
		Comment:     p.normalizer.Localize(a.Comment),
		ContentType: a.ContentType,
		CreatedAt:   a.Published,
	}
	if comment.ContentType == "" {
		comment.ContentType = "text/plain"
	}
	if a.Id != "" {
		ref, err := p.codec.Parse(a.Id)
		if err != nil {
			return Result{}, err
		}
		if ref.Kind != KindComment {
			return Result{}, fmt.Errorf("%w: %q is not a comment url", domain.ErrValidation, a.Id)
		}
		comment.Id = ref.CommentId
		comment.URL = p.codec.URL(ref)
	} else {
		postRef, err := p.codec.ParsePost(post.URL)
		if err != nil {
			return Result{}, err
		}
		comment.URL = p.codec.CommentURL(postRef.Host, postRef.AuthorId, postRef.PostId, comment.Id)
	}

	entry, err := newEntry(recipient.Id, TypeComment, comment.URL, a)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.CreateComment(comment, entry); err != nil {
		return Result{}, err
	}
	return Result{Type: TypeComment, Id: comment.Id, Object: comment.URL}, nil
}

// resolveCommentTarget finds the commented post locally, then by origin,
// and finally by fetching it from the node it came from. A fetched post is
// stored as a copy with its origin and source kept.
func (p *Processor) resolveCommentTarget(ctx context.Context, target PostRef) (*domain.Post, error) {
	ref, err := p.codec.ParsePost(target.URL)
	if err != nil {
		return nil, err
	}
	if p.codec.IsLocal(ref.Host) {
		return p.store.ReadPostById(ref.PostId)
	}

	canonical := p.codec.URL(ref)
	if post, err := p.store.ReadPostByOrigin(canonical); err == nil {
		return post, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if target.Post != nil && target.Post.Origin != "" {
		if post, err := p.store.ReadPostByOrigin(target.Post.Origin); err == nil {
			return post, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	sourceHost := ref.Host
	if target.Post != nil && target.Post.Source != "" {
		sourceHost = NormalizeHost(target.Post.Source)
	}
	peer, ok := p.registry.Reachable(sourceHost)
	if !ok {
		return nil, fmt.Errorf("post %s: source %s is not a reachable peer: %w", canonical, sourceHost, domain.ErrNotFound)
	}
	fetched, err := p.client.FetchPost(ctx, peer, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("post %s unresolvable via %s (%v): %w", canonical, peer.Name, err, domain.ErrNotFound)
	}
	owner, err := p.EnsureRemoteAuthor(fetched.Author)
	if err != nil {
		return nil, err
	}
	vis, err := domain.ParseVisibility(fetched.Visibility)
	if err != nil {
		return nil, err
	}
	contentType, content, err := NormalizeMedia(fetched.ContentType, fetched.Content)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", canonical, err)
	}
	post := &domain.Post{
		Id:          ref.PostId,
		AuthorId:    owner.Id,
		Title:       fetched.Title,
		Description: fetched.Description,
		ContentType: contentType,
		Content:     p.normalizer.Localize(content),
		Visibility:  vis,
		Origin:      orDefault(fetched.Origin, canonical),
		Source:      orDefault(fetched.Source, canonical),
		URL:         canonical,
		CreatedAt:   fetched.Published,
	}
	slog.Info("Inbox: storing copy of remote post", "origin", post.Origin, "peer", peer.Name)
	return p.store.SavePostCopy(post)
}

func (p *Processor) ingestPost(recipient *domain.Author, a *PostActivity) (Result, error) {
	if _, err := p.codec.ParsePost(a.Id); err != nil {
		return Result{}, err
	}
	contentType, content, err := NormalizeMedia(a.ContentType, a.Content)
	if err != nil {
		return Result{}, err
	}
	copied := *a
	copied.ContentType = contentType
	copied.Content = p.normalizer.Localize(content)
	origin := orDefault(a.Origin, a.Id)

	entry, err := newEntry(recipient.Id, TypePost, origin, &copied)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.CreateInboxEntry(entry); err != nil {
		return Result{}, err
	}
	return Result{Type: TypePost, Id: entry.Id, Object: origin}, nil
}

func newEntry(recipientId uuid.UUID, t ActivityType, object string, act Activity) (*domain.InboxEntry, error) {
	payload, err := json.Marshal(act)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", t, err)
	}
	return &domain.InboxEntry{
		Id:       uuid.New(),
		AuthorId: recipientId,
		Type:     string(t),
		Object:   object,
		Payload:  string(payload),
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
