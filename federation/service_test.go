package federation

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPostReachesFollowersOnly(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")
	stranger := n.addLocal(t, "stranger")
	n.follow(t, bob, alice)

	post, report, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "hi", Content: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, domain.Public, post.Visibility)
	assert.Equal(t, post.URL, post.Origin)
	assert.Equal(t, post.URL, post.Source)
	assert.Equal(t, 1, report.LocalDelivered)

	entries := n.inbox(t, bob)
	require.Len(t, entries, 1)
	assert.Equal(t, post.URL, entries[0].Object)
	assert.Empty(t, n.inbox(t, stranger))
}

func TestPublishFriendsPost(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	friend := n.addLocal(t, "friend")
	fan := n.addLocal(t, "fan")
	n.follow(t, friend, alice)
	n.follow(t, alice, friend)
	n.follow(t, fan, alice)

	_, _, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "close friends", Visibility: "friends"})
	require.NoError(t, err)
	assert.Len(t, n.inbox(t, friend), 1)
	assert.Empty(t, n.inbox(t, fan), "one-directional followers are not friends")
}

func TestPublishUnlistedPost(t *testing.T) {
	peer := newStubPeer(t, http.StatusOK)
	n := newTestNode(t, peer.node("node-b"))
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")
	n.follow(t, bob, alice)
	n.follow(t, n.addRemote(t, peer.URL, "rita"), alice)

	post, report, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "secret link", Visibility: "UNLISTED"})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, n.inbox(t, bob))
	assert.Empty(t, peer.received())

	stored, err := n.store.ReadPostById(post.Id)
	require.NoError(t, err, "unlisted posts stay fetchable by id")
	assert.Equal(t, domain.Unlisted, stored.Visibility)
}

func TestPublishPostValidation(t *testing.T) {
	n := newTestNode(t)
	alice := n.addLocal(t, "alice")
	remote := n.addRemote(t, "http://node-b.test", "rita")

	_, _, err := n.service.PublishPost(context.Background(), alice.Id, PostInput{Title: ""})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, _, err = n.service.PublishPost(context.Background(), alice.Id, PostInput{Title: "x", Visibility: "everyone"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, _, err = n.service.PublishPost(context.Background(), remote.Id, PostInput{Title: "x"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSharePostKeepsProvenance(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")
	carol := n.addLocal(t, "carol")
	n.follow(t, carol, bob)
	n.follow(t, carol, alice)

	original, _, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "original"})
	require.NoError(t, err)

	shared, _, err := n.service.SharePost(ctx, bob.Id, original.Id)
	require.NoError(t, err)
	assert.NotEqual(t, original.Id, shared.Id)
	assert.Equal(t, original.Origin, shared.Origin)
	assert.Equal(t, original.Source, shared.Source)

	assert.Len(t, n.inbox(t, carol), 1, "a re-shared post with a known origin is discarded")

	friendsOnly, _, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "f", Visibility: "FRIENDS"})
	require.NoError(t, err)
	_, _, err = n.service.SharePost(ctx, bob.Id, friendsOnly.Id)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestFollowLocalAuthorAndAccept(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")

	_, report, err := n.service.Follow(ctx, alice.Id, bob.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LocalDelivered)

	entries := n.inbox(t, bob)
	require.Len(t, entries, 1)
	assert.Equal(t, "follow", entries[0].Type)

	_, _, err = n.service.Follow(ctx, alice.Id, bob.URL)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	require.NoError(t, n.service.AcceptFollowRequest(ctx, bob.Id, alice.Id))
	following, err := n.store.IsFollowing(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.True(t, following)

	_, _, err = n.service.Follow(ctx, alice.Id, bob.URL)
	assert.True(t, errors.Is(err, domain.ErrConflict), "following twice is a conflict")

	require.NoError(t, n.service.Unfollow(ctx, alice.Id, bob.Id))
	assert.True(t, errors.Is(n.service.Unfollow(ctx, alice.Id, bob.Id), domain.ErrNotFound))
}

func TestDeclineFollowRequest(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")

	_, _, err := n.service.Follow(ctx, alice.Id, bob.URL)
	require.NoError(t, err)
	require.NoError(t, n.service.DeclineFollowRequest(ctx, bob.Id, alice.Id))
	assert.True(t, errors.Is(n.service.DeclineFollowRequest(ctx, bob.Id, alice.Id), domain.ErrNotFound))
	assert.True(t, errors.Is(n.service.AcceptFollowRequest(ctx, bob.Id, alice.Id), domain.ErrNotFound))
}

func TestFollowRemoteAuthorFetchesDescriptor(t *testing.T) {
	peer := newStubPeer(t, http.StatusCreated)
	n := newTestNode(t, peer.node("node-b"))
	ctx := context.Background()
	alice := n.addLocal(t, "alice")

	desc := remoteDesc(peer.URL)
	ref, err := n.codec.ParseAuthor(desc.Id)
	require.NoError(t, err)
	peer.handle("/api/authors/"+ref.AuthorId.String(), func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/authors/"+ref.AuthorId.String() {
			writeJSON(w, http.StatusOK, desc)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	target, report, err := n.service.Follow(ctx, alice.Id, desc.Id)
	require.NoError(t, err)
	assert.True(t, target.IsRemote)
	assert.Equal(t, 1, report.RemoteDelivered)

	pending, err := n.store.HasFollowRequest(alice.Id, target.Id)
	require.NoError(t, err)
	assert.True(t, pending, "the request is kept locally for the poller")
}

func TestFollowerStatusCountsPendingLocalRequests(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	remote := n.addRemote(t, "http://node-b.test", "rita")
	other := n.addRemote(t, "http://node-b.test", "otto")

	require.NoError(t, n.store.CreateFollowRequest(&domain.FollowRequest{FromId: alice.Id, ToId: remote.Id}, nil))
	ok, err := n.service.FollowerStatus(ctx, remote.Id, alice.Id)
	require.NoError(t, err)
	assert.True(t, ok)

	n.follow(t, other, alice)
	ok, err = n.service.FollowerStatus(ctx, alice.Id, other.Id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = n.service.FollowerStatus(ctx, alice.Id, remote.Id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = n.service.FollowerStatus(ctx, alice.Id, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLikeAndCommentLocalPost(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	bob := n.addLocal(t, "bob")

	post, _, err := n.service.PublishPost(ctx, alice.Id, PostInput{Title: "hi"})
	require.NoError(t, err)

	_, err = n.service.Like(ctx, bob.Id, post.URL)
	require.NoError(t, err)
	_, err = n.service.Like(ctx, bob.Id, post.URL)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	comment, _, err := n.service.Comment(ctx, bob.Id, post.URL, "great", "")
	require.NoError(t, err)
	stored, err := n.store.ReadCommentById(comment.Id)
	require.NoError(t, err)
	assert.Equal(t, "great", stored.Comment)
	assert.Equal(t, comment.URL, stored.URL)

	entries := n.inbox(t, alice)
	assert.Len(t, entries, 2)

	_, err = n.service.Like(ctx, bob.Id, comment.URL)
	require.NoError(t, err)
	likes, err := n.store.ReadLikesByComment(comment.Id)
	require.NoError(t, err)
	assert.Len(t, likes, 1)
}

func TestLikeRemotePostPushesToOwner(t *testing.T) {
	peer := newStubPeer(t, http.StatusOK)
	n := newTestNode(t, peer.node("node-b"))
	ctx := context.Background()
	alice := n.addLocal(t, "alice")
	owner := n.addRemote(t, peer.URL, "rita")

	postURL := n.codec.PostURL(peer.URL, owner.Id, uuid.New())
	report, err := n.service.Like(ctx, alice.Id, postURL)
	require.NoError(t, err)
	assert.Equal(t, Report{RemoteDelivered: 1}, report)

	reqs := peer.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/authors/"+owner.Id.String()+"/inbox", reqs[0].Path)
}
