package federation

import (
	"context"
	"fmt"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
)

// Audience is who must receive an activity, split by where they live.
// Remote recipients are grouped by their normalized host.
type Audience struct {
	Local  []domain.Author
	Remote map[string][]domain.Author
}

func (a Audience) Size() int {
	n := len(a.Local)
	for _, rs := range a.Remote {
		n += len(rs)
	}
	return n
}

func (a *Audience) add(author domain.Author) {
	if !author.IsRemote {
		a.Local = append(a.Local, author)
		return
	}
	if a.Remote == nil {
		a.Remote = make(map[string][]domain.Author)
	}
	host := NormalizeHost(author.Host)
	a.Remote[host] = append(a.Remote[host], author)
}

type AudienceResolver struct {
	store Store
	codec *Codec
}

func NewAudienceResolver(store Store, codec *Codec) *AudienceResolver {
	return &AudienceResolver{store: store, codec: codec}
}

// Resolve computes the recipients of act published by author.
//
// Posts fan out by visibility: PUBLIC to every follower, FRIENDS to the
// followers author follows back, UNLISTED to nobody. Likes and comments go
// to the owner of the target only, follows to the followed author.
func (r *AudienceResolver) Resolve(ctx context.Context, author *domain.Author, act Activity) (Audience, error) {
	var aud Audience
	if err := ctx.Err(); err != nil {
		return aud, err
	}

	switch a := act.(type) {
	case *PostActivity:
		vis, err := domain.ParseVisibility(a.Visibility)
		if err != nil {
			return aud, err
		}
		recipients, err := r.postAudience(author.Id, vis)
		if err != nil {
			return aud, err
		}
		for _, rc := range recipients {
			aud.add(rc)
		}
	case *LikeActivity:
		owner, err := r.owner(a.Object)
		if err != nil {
			return aud, err
		}
		aud.add(*owner)
	case *CommentActivity:
		owner, err := r.owner(a.Post.URL)
		if err != nil {
			return aud, err
		}
		aud.add(*owner)
	case *FollowActivity:
		ref, err := r.codec.ParseAuthor(a.Object.Id)
		if err != nil {
			return aud, err
		}
		target, err := r.store.ReadAuthorById(ref.AuthorId)
		if err != nil {
			return aud, err
		}
		aud.add(*target)
	default:
		return aud, fmt.Errorf("%w: no audience for %T", domain.ErrValidation, act)
	}
	return aud, nil
}

func (r *AudienceResolver) postAudience(authorId uuid.UUID, vis domain.Visibility) ([]domain.Author, error) {
	switch vis {
	case domain.Unlisted:
		return nil, nil
	case domain.Friends:
		followers, err := r.store.ReadFollowers(authorId)
		if err != nil {
			return nil, err
		}
		following, err := r.store.ReadFollowing(authorId)
		if err != nil {
			return nil, err
		}
		followsBack := make(map[uuid.UUID]bool, len(following))
		for _, f := range following {
			followsBack[f.Id] = true
		}
		friends := followers[:0]
		for _, f := range followers {
			if followsBack[f.Id] {
				friends = append(friends, f)
			}
		}
		return friends, nil
	default:
		return r.store.ReadFollowers(authorId)
	}
}

// owner returns the author owning the post or comment at target. For a
// comment that is the author of the post it belongs to, which the URL
// already names.
func (r *AudienceResolver) owner(target string) (*domain.Author, error) {
	ref, err := r.codec.Parse(target)
	if err != nil {
		return nil, err
	}
	if ref.Kind == KindAuthor {
		return nil, fmt.Errorf("%w: %q is not a post or comment", domain.ErrValidation, target)
	}
	return r.store.ReadAuthorById(ref.AuthorId)
}
