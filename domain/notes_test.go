package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		input   string
		want    Visibility
		wantErr bool
	}{
		{"", Public, false},
		{"PUBLIC", Public, false},
		{"public", Public, false},
		{" Friends ", Friends, false},
		{"unlisted", Unlisted, false},
		{"private", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVisibility(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseVisibility(%q) error = %v, want ErrValidation", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVisibility(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVisibility(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestPostToString(t *testing.T) {
	id := uuid.New()
	post := &Post{
		Id:         id,
		AuthorId:   uuid.New(),
		Title:      "Test title",
		Visibility: Friends,
		CreatedAt:  time.Now(),
	}

	result := post.ToString()

	if !strings.Contains(result, "Test title") {
		t.Errorf("ToString() should contain title, got: %s", result)
	}
	if !strings.Contains(result, id.String()) {
		t.Errorf("ToString() should contain ID, got: %s", result)
	}
	if !strings.Contains(result, "FRIENDS") {
		t.Errorf("ToString() should contain visibility, got: %s", result)
	}
}
