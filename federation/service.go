package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

// PostInput is what a local author submits to publish a post.
type PostInput struct {
	Title       string `json:"title" validate:"required,max=300"`
	Description string `json:"description" validate:"max=1000"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
	Visibility  string `json:"visibility"`
}

// Service carries out actions of local authors. Success reflects local
// persistence and local delivery; remote delivery never fails an action.
type Service struct {
	store      Store
	codec      *Codec
	resolver   *AudienceResolver
	dispatcher *Dispatcher
	processor  *Processor
	registry   *Registry
	client     *PeerClient
	normalizer *Normalizer
	async      bool
}

type ServiceOption func(*Service)

// WithAsyncDelivery makes actions return before remote pushes finish.
func WithAsyncDelivery() ServiceOption {
	return func(s *Service) { s.async = true }
}

func NewService(store Store, codec *Codec, resolver *AudienceResolver, dispatcher *Dispatcher, processor *Processor,
	registry *Registry, client *PeerClient, normalizer *Normalizer, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		codec:      codec,
		resolver:   resolver,
		dispatcher: dispatcher,
		processor:  processor,
		registry:   registry,
		client:     client,
		normalizer: normalizer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishPost stores a new post of authorId and delivers it to its audience.
func (s *Service) PublishPost(ctx context.Context, authorId uuid.UUID, in PostInput) (*domain.Post, Report, error) {
	author, err := s.localAuthor(authorId)
	if err != nil {
		return nil, Report{}, err
	}
	if err := validate.Struct(&in); err != nil {
		return nil, Report{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	vis, err := domain.ParseVisibility(in.Visibility)
	if err != nil {
		return nil, Report{}, err
	}
	contentType, content, err := NormalizeMedia(orDefault(in.ContentType, "text/plain"), in.Content)
	if err != nil {
		return nil, Report{}, err
	}

	id := uuid.New()
	post := &domain.Post{
		Id:          id,
		AuthorId:    author.Id,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		ContentType: contentType,
		Content:     content,
		Visibility:  vis,
		URL:         s.codec.PostURL(s.codec.LocalHost, author.Id, id),
	}
	if err := s.store.CreatePost(post); err != nil {
		return nil, Report{}, err
	}
	slog.Debug("Outbox: post stored", "post", post.ToString())
	report, err := s.deliver(ctx, author, DescribePost(post, author))
	return post, report, err
}

// SharePost republishes a public post under authorId. The copy keeps the
// original origin and source so receivers can discard duplicates.
func (s *Service) SharePost(ctx context.Context, authorId, postId uuid.UUID) (*domain.Post, Report, error) {
	author, err := s.localAuthor(authorId)
	if err != nil {
		return nil, Report{}, err
	}
	original, err := s.store.ReadPostById(postId)
	if err != nil {
		return nil, Report{}, err
	}
	if original.Visibility != domain.Public {
		return nil, Report{}, fmt.Errorf("%w: only public posts can be shared", domain.ErrValidation)
	}

	id := uuid.New()
	shared := *original
	shared.Id = id
	shared.AuthorId = author.Id
	shared.CommentCount = 0
	shared.CreatedAt = time.Time{}
	shared.URL = s.codec.PostURL(s.codec.LocalHost, author.Id, id)
	if err := s.store.CreatePost(&shared); err != nil {
		return nil, Report{}, err
	}
	report, err := s.deliver(ctx, author, DescribePost(&shared, author))
	return &shared, report, err
}

// Follow asks the author at targetURL to accept followerId as a follower.
// For a remote target the pending request is kept here as well, so the
// poller can learn about the approval.
func (s *Service) Follow(ctx context.Context, followerId uuid.UUID, targetURL string) (*domain.Author, Report, error) {
	follower, err := s.localAuthor(followerId)
	if err != nil {
		return nil, Report{}, err
	}
	target, err := s.resolveAuthor(ctx, targetURL)
	if err != nil {
		return nil, Report{}, err
	}
	if target.Id == follower.Id {
		return nil, Report{}, fmt.Errorf("%w: author cannot follow themselves", domain.ErrValidation)
	}

	act := &FollowActivity{
		Type:    string(TypeFollow),
		Summary: fmt.Sprintf("%s wants to follow %s", follower.DisplayName, target.DisplayName),
		Actor:   DescribeAuthor(follower),
		Object:  DescribeAuthor(target),
	}
	if target.IsRemote {
		if err := s.store.CreateFollowRequest(&domain.FollowRequest{FromId: follower.Id, ToId: target.Id}, nil); err != nil {
			return nil, Report{}, err
		}
	}
	report, err := s.deliver(ctx, follower, act)
	return target, report, err
}

// AcceptFollowRequest turns the request from senderId into a follower edge.
func (s *Service) AcceptFollowRequest(ctx context.Context, authorId, senderId uuid.UUID) error {
	if _, err := s.localAuthor(authorId); err != nil {
		return err
	}
	converted, err := s.store.AcceptFollowRequest(senderId, authorId)
	if err != nil {
		return err
	}
	if !converted {
		return fmt.Errorf("%s already follows %s: %w", senderId, authorId, domain.ErrConflict)
	}
	slog.Info("Follow: request accepted", "author", authorId, "follower", senderId)
	return nil
}

func (s *Service) DeclineFollowRequest(ctx context.Context, authorId, senderId uuid.UUID) error {
	deleted, err := s.store.DeleteFollowRequest(senderId, authorId)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("follow request from %s: %w", senderId, domain.ErrNotFound)
	}
	return nil
}

// Unfollow drops the edge or pending request from followerId to targetId.
// Remote nodes learn about it when they next poll this node.
func (s *Service) Unfollow(ctx context.Context, followerId, targetId uuid.UUID) error {
	if _, err := s.localAuthor(followerId); err != nil {
		return err
	}
	edge, err := s.store.DeleteFollower(followerId, targetId)
	if err != nil {
		return err
	}
	request, err := s.store.DeleteFollowRequest(followerId, targetId)
	if err != nil {
		return err
	}
	if !edge && !request {
		return fmt.Errorf("%s does not follow %s: %w", followerId, targetId, domain.ErrNotFound)
	}
	return nil
}

// RemoveFollower drops followerId from the followers of authorId.
func (s *Service) RemoveFollower(ctx context.Context, authorId, followerId uuid.UUID) error {
	deleted, err := s.store.DeleteFollower(followerId, authorId)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%s does not follow %s: %w", followerId, authorId, domain.ErrNotFound)
	}
	return nil
}

// FollowerStatus answers the follower query peers poll. A local follower
// with a pending request counts as following so a peer never revokes an
// edge this node has not converted yet.
func (s *Service) FollowerStatus(ctx context.Context, followedId, followerId uuid.UUID) (bool, error) {
	following, err := s.store.IsFollowing(followerId, followedId)
	if err != nil || following {
		return following, err
	}
	follower, err := s.store.ReadAuthorById(followerId)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if follower.IsRemote {
		return false, nil
	}
	return s.store.HasFollowRequest(followerId, followedId)
}

// Like records a like by authorId on the post or comment at objectURL and
// notifies its owner.
func (s *Service) Like(ctx context.Context, authorId uuid.UUID, objectURL string) (Report, error) {
	author, err := s.localAuthor(authorId)
	if err != nil {
		return Report{}, err
	}
	ref, err := s.codec.Parse(objectURL)
	if err != nil {
		return Report{}, err
	}
	if ref.Kind == KindAuthor {
		return Report{}, fmt.Errorf("%w: cannot like an author", domain.ErrValidation)
	}
	owner, err := s.resolveAuthor(ctx, s.codec.AuthorURL(ref.Host, ref.AuthorId))
	if err != nil {
		return Report{}, err
	}
	act := &LikeActivity{
		Type:    string(TypeLike),
		Summary: author.DisplayName + " likes your content",
		Author:  DescribeAuthor(author),
		Object:  s.codec.URL(ref),
	}

	// a like on a remote post this node holds a copy of is recorded here too
	if owner.IsRemote {
		if post, comment, err := s.processor.resolveLikeTarget(act.Object); err == nil {
			like := &domain.Like{AuthorId: author.Id, PostId: post.Id, Object: act.Object}
			if comment != nil {
				like.CommentId = &comment.Id
			}
			if err := s.store.CreateLike(like, nil); err != nil {
				return Report{}, err
			}
		}
	}
	return s.deliver(ctx, author, act)
}

// Comment adds a comment by authorId to the post at postURL and notifies
// the post's owner.
func (s *Service) Comment(ctx context.Context, authorId uuid.UUID, postURL, text, contentType string) (*domain.Comment, Report, error) {
	author, err := s.localAuthor(authorId)
	if err != nil {
		return nil, Report{}, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, Report{}, fmt.Errorf("%w: empty comment", domain.ErrValidation)
	}
	ref, err := s.codec.ParsePost(postURL)
	if err != nil {
		return nil, Report{}, err
	}
	owner, err := s.resolveAuthor(ctx, s.codec.AuthorURL(ref.Host, ref.AuthorId))
	if err != nil {
		return nil, Report{}, err
	}

	commentId := uuid.New()
	comment := &domain.Comment{
		Id:          commentId,
		AuthorId:    author.Id,
		Comment:     text,
		ContentType: orDefault(contentType, "text/plain"),
		URL:         s.codec.CommentURL(ref.Host, ref.AuthorId, ref.PostId, commentId),
	}
	act := &CommentActivity{
		Type:        string(TypeComment),
		Id:          comment.URL,
		Author:      DescribeAuthor(author),
		Comment:     text,
		ContentType: comment.ContentType,
		Post:        PostRef{URL: s.codec.URL(ref)},
	}

	// keep the comment on a held copy of a remote post as well
	if owner.IsRemote {
		if post, err := s.store.ReadPostByOrigin(act.Post.URL); err == nil {
			comment.PostId = post.Id
			if err := s.store.CreateComment(comment, nil); err != nil {
				return nil, Report{}, err
			}
		}
	} else {
		comment.PostId = ref.PostId
	}
	report, err := s.deliver(ctx, author, act)
	return comment, report, err
}

func (s *Service) deliver(ctx context.Context, author *domain.Author, act Activity) (Report, error) {
	aud, err := s.resolver.Resolve(ctx, author, act)
	if err != nil {
		return Report{}, err
	}
	if s.async {
		return s.dispatcher.DispatchAsync(ctx, act, aud)
	}
	return s.dispatcher.Dispatch(ctx, act, aud)
}

func (s *Service) localAuthor(id uuid.UUID) (*domain.Author, error) {
	author, err := s.store.ReadAuthorById(id)
	if err != nil {
		return nil, err
	}
	if author.IsRemote {
		return nil, fmt.Errorf("author %s is not local: %w", id, domain.ErrNotFound)
	}
	return author, nil
}

// resolveAuthor returns the author at url, fetching and caching the
// descriptor from its node when it is remote and not known yet.
func (s *Service) resolveAuthor(ctx context.Context, url string) (*domain.Author, error) {
	ref, err := s.codec.ParseAuthor(url)
	if err != nil {
		return nil, err
	}
	author, err := s.store.ReadAuthorById(ref.AuthorId)
	if err == nil || !errors.Is(err, domain.ErrNotFound) || s.codec.IsLocal(ref.Host) {
		return author, err
	}

	peer, ok := s.registry.Reachable(ref.Host)
	if !ok {
		return nil, fmt.Errorf("author %s: %s is not a reachable peer: %w", url, ref.Host, domain.ErrNotFound)
	}
	desc, err := s.client.FetchAuthor(ctx, peer, ref)
	if err != nil {
		return nil, err
	}
	return s.processor.EnsureRemoteAuthor(*desc)
}
