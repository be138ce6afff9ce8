package federation

import (
	"errors"
	"testing"

	"github.com/deemkeen/plaza/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecParse(t *testing.T) {
	codec := NewCodec("http://node-a.test")
	author := uuid.New()
	post := uuid.New()
	comment := uuid.New()

	tests := []struct {
		name string
		raw  string
		want Ref
	}{
		{
			name: "author",
			raw:  "http://node-a.test/authors/" + author.String(),
			want: Ref{Host: "http://node-a.test", Kind: KindAuthor, AuthorId: author},
		},
		{
			name: "author with trailing slash and api prefix",
			raw:  "http://Node-B.test:8000/api/authors/" + author.String() + "/",
			want: Ref{Host: "http://node-b.test:8000", Kind: KindAuthor, AuthorId: author},
		},
		{
			name: "post with query and stray brace",
			raw:  "https://node-c.test/authors/" + author.String() + "/posts/" + post.String() + "?page=2}",
			want: Ref{Host: "https://node-c.test", Kind: KindPost, AuthorId: author, PostId: post},
		},
		{
			name: "comment with doubled slashes",
			raw:  "http://node-a.test//authors/" + author.String() + "//posts/" + post.String() + "/comments/" + comment.String(),
			want: Ref{Host: "http://node-a.test", Kind: KindComment, AuthorId: author, PostId: post, CommentId: comment},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecParseRejects(t *testing.T) {
	codec := NewCodec("http://node-a.test")
	id := uuid.New().String()

	for _, raw := range []string{
		"",
		"not a url",
		"/authors/" + id,
		"http://node-a.test/authors/not-a-uuid",
		"http://node-a.test/users/" + id,
		"http://node-a.test/authors/" + id + "/inbox",
		"http://node-a.test/authors",
	} {
		_, err := codec.Parse(raw)
		assert.True(t, errors.Is(err, domain.ErrValidation), "Parse(%q) should fail validation, got %v", raw, err)
	}
}

func TestCodecParseKind(t *testing.T) {
	codec := NewCodec("http://node-a.test")
	postURL := codec.PostURL("http://node-a.test", uuid.New(), uuid.New())

	_, err := codec.ParsePost(postURL)
	assert.NoError(t, err)

	_, err = codec.ParseAuthor(postURL)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCodecFormatRoundTrip(t *testing.T) {
	codec := NewCodec("http://node-a.test/")
	ref := Ref{Host: "http://node-b.test", Kind: KindComment, AuthorId: uuid.New(), PostId: uuid.New(), CommentId: uuid.New()}

	got, err := codec.Parse(codec.URL(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, got)
	assert.Equal(t, []string{"authors", ref.AuthorId.String(), "posts", ref.PostId.String(), "comments", ref.CommentId.String()}, codec.ResourcePath(ref))
}

func TestCodecIsLocal(t *testing.T) {
	codec := NewCodec("http://Node-A.test/")
	assert.True(t, codec.IsLocal("http://node-a.test"))
	assert.True(t, codec.IsLocal("http://node-a.test/authors/x"))
	assert.False(t, codec.IsLocal("http://node-b.test"))
	assert.Equal(t, "http://node-a.test", codec.Host("http://node-a.test/api/authors/"))
}
