package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/go-playground/validator/v10"
)

type ActivityType string

const (
	TypeFollow  ActivityType = "follow"
	TypeLike    ActivityType = "like"
	TypeComment ActivityType = "comment"
	TypePost    ActivityType = "post"
	TypeInbox   ActivityType = "inbox"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Activity is one of *FollowActivity, *LikeActivity, *CommentActivity or
// *PostActivity. The unexported method keeps the set closed.
type Activity interface {
	Kind() ActivityType
	check() error
}

// AuthorDesc is the author descriptor embedded in activities.
type AuthorDesc struct {
	Type         string `json:"type,omitempty"`
	Id           string `json:"id" validate:"required,url"`
	Host         string `json:"host,omitempty" validate:"omitempty,url"`
	DisplayName  string `json:"displayName,omitempty"`
	URL          string `json:"url,omitempty" validate:"omitempty,url"`
	Github       string `json:"github,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

type FollowActivity struct {
	Type    string     `json:"type"`
	Summary string     `json:"summary,omitempty"`
	Actor   AuthorDesc `json:"actor" validate:"required"`
	Object  AuthorDesc `json:"object" validate:"required"`
}

type LikeActivity struct {
	Type    string     `json:"type"`
	Summary string     `json:"summary,omitempty"`
	Author  AuthorDesc `json:"author" validate:"required"`
	Object  string     `json:"object" validate:"required,url"`
}

type CommentActivity struct {
	Type        string     `json:"type"`
	Id          string     `json:"id,omitempty" validate:"omitempty,url"`
	Author      AuthorDesc `json:"author" validate:"required"`
	Comment     string     `json:"comment" validate:"required"`
	ContentType string     `json:"contentType,omitempty"`
	Post        PostRef    `json:"post" validate:"-"`
	Published   time.Time  `json:"published,omitzero"`
}

type PostActivity struct {
	Type        string     `json:"type"`
	Id          string     `json:"id" validate:"required,url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	Content     string     `json:"content"`
	Visibility  string     `json:"visibility" validate:"omitempty,oneofci=PUBLIC FRIENDS UNLISTED"`
	Origin      string     `json:"origin,omitempty" validate:"omitempty,url"`
	Source      string     `json:"source,omitempty" validate:"omitempty,url"`
	Author      AuthorDesc `json:"author" validate:"required"`
	Count       int        `json:"count"`
	Published   time.Time  `json:"published,omitzero"`
}

// PostRef is the target of a comment. Peers send either the post URL or the
// whole post object.
type PostRef struct {
	URL  string
	Post *PostActivity
}

func (r PostRef) MarshalJSON() ([]byte, error) {
	if r.Post != nil {
		return json.Marshal(r.Post)
	}
	return json.Marshal(r.URL)
}

func (r *PostRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.URL)
	}
	var p PostActivity
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	r.Post = &p
	r.URL = p.Id
	return nil
}

func (a *FollowActivity) Kind() ActivityType  { return TypeFollow }
func (a *LikeActivity) Kind() ActivityType    { return TypeLike }
func (a *CommentActivity) Kind() ActivityType { return TypeComment }
func (a *PostActivity) Kind() ActivityType    { return TypePost }

func (a *FollowActivity) check() error {
	if err := validate.Struct(a); err != nil {
		return invalid(TypeFollow, err)
	}
	if strings.TrimSpace(a.Actor.DisplayName) == "" {
		return fmt.Errorf("%w: follow actor needs a displayName", domain.ErrValidation)
	}
	return nil
}

func (a *LikeActivity) check() error {
	if err := validate.Struct(a); err != nil {
		return invalid(TypeLike, err)
	}
	return nil
}

func (a *CommentActivity) check() error {
	if err := validate.Struct(a); err != nil {
		return invalid(TypeComment, err)
	}
	if a.Post.URL == "" {
		return fmt.Errorf("%w: comment has no target post", domain.ErrValidation)
	}
	if err := validate.Var(a.Post.URL, "url"); err != nil {
		return invalid(TypeComment, err)
	}
	return nil
}

func (a *PostActivity) check() error {
	if err := validate.Struct(a); err != nil {
		return invalid(TypePost, err)
	}
	return nil
}

func invalid(t ActivityType, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrValidation, t, err)
}

// Envelope is the inbox wire format, identical in both directions.
type Envelope struct {
	Type   ActivityType      `json:"type"`
	Author string            `json:"author"`
	Items  []json.RawMessage `json:"items"`
}

// NewEnvelope wraps act for delivery to the author at recipientURL.
func NewEnvelope(recipientURL string, act Activity) (*Envelope, error) {
	item, err := json.Marshal(act)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", act.Kind(), err)
	}
	return &Envelope{Type: TypeInbox, Author: recipientURL, Items: []json.RawMessage{item}}, nil
}

// DecodeActivity decodes a single tagged activity and validates it.
func DecodeActivity(raw []byte) (Activity, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var act Activity
	switch ActivityType(strings.ToLower(strings.TrimSpace(head.Type))) {
	case TypeFollow:
		act = &FollowActivity{}
	case TypeLike:
		act = &LikeActivity{}
	case TypeComment:
		act = &CommentActivity{}
	case TypePost:
		act = &PostActivity{}
	case "":
		return nil, fmt.Errorf("%w: activity has no type", domain.ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown activity type %q", domain.ErrValidation, head.Type)
	}
	if err := json.Unmarshal(raw, act); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrValidation, act.Kind(), err)
	}
	setType(act)
	if err := act.check(); err != nil {
		return nil, err
	}
	return act, nil
}

// DecodeInbox accepts either an inbox envelope or a bare activity and
// returns its items. Every item is validated before any is returned.
func DecodeInbox(raw []byte) ([]Activity, error) {
	var head struct {
		Type  string            `json:"type"`
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !strings.EqualFold(strings.TrimSpace(head.Type), string(TypeInbox)) {
		act, err := DecodeActivity(raw)
		if err != nil {
			return nil, err
		}
		return []Activity{act}, nil
	}
	if len(head.Items) == 0 {
		return nil, fmt.Errorf("%w: inbox envelope has no items", domain.ErrValidation)
	}
	acts := make([]Activity, 0, len(head.Items))
	for i, item := range head.Items {
		act, err := DecodeActivity(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		acts = append(acts, act)
	}
	return acts, nil
}

// setType canonicalizes the tag so re-encoded activities always carry it.
func setType(act Activity) {
	switch a := act.(type) {
	case *FollowActivity:
		a.Type = string(TypeFollow)
	case *LikeActivity:
		a.Type = string(TypeLike)
	case *CommentActivity:
		a.Type = string(TypeComment)
	case *PostActivity:
		a.Type = string(TypePost)
	}
}

// DescribeAuthor renders a stored author as a wire descriptor.
func DescribeAuthor(a *domain.Author) AuthorDesc {
	return AuthorDesc{
		Type:         "author",
		Id:           a.URL,
		Host:         a.Host,
		DisplayName:  a.DisplayName,
		URL:          a.URL,
		Github:       a.Github,
		ProfileImage: a.ProfileImage,
	}
}

// DescribePost renders a stored post and its author as a post activity.
func DescribePost(p *domain.Post, author *domain.Author) *PostActivity {
	return &PostActivity{
		Type:        string(TypePost),
		Id:          p.URL,
		Title:       p.Title,
		Description: p.Description,
		ContentType: p.ContentType,
		Content:     p.Content,
		Visibility:  string(p.Visibility),
		Origin:      p.Origin,
		Source:      p.Source,
		Author:      DescribeAuthor(author),
		Count:       p.CommentCount,
		Published:   p.CreatedAt,
	}
}
