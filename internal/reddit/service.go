// Package reddit maps query parameters onto upstream endpoints, delegates
// the fetch to the resilient client, and reshapes listing envelopes into
// flat response types.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSubreddit indicates a subreddit name that cannot exist.
	ErrInvalidSubreddit = errors.New("invalid subreddit name")
	// ErrInvalidUsername indicates a username that cannot exist.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidSort indicates an unsupported sort order.
	ErrInvalidSort = errors.New("invalid sort order")
	// ErrInvalidTimeRange indicates an unsupported top-posts time range.
	ErrInvalidTimeRange = errors.New("invalid time range")
	// ErrEmptyQuery indicates a search with no query text.
	ErrEmptyQuery = errors.New("search query is required")
	// ErrInvalidPostID indicates a malformed post id.
	ErrInvalidPostID = errors.New("invalid post id")
)

var (
	subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)
	postIDPattern    = regexp.MustCompile(`^[a-z0-9]{1,13}$`)
)

const (
	defaultLimit = 25
	maxLimit     = 100
)

// Fetcher is the upstream surface the service consumes.
type Fetcher interface {
	Fetch(ctx context.Context, cacheKey, endpoint string) (json.RawMessage, error)
}

// KeyBuilder derives deterministic cache keys from request parameters.
type KeyBuilder func(parts ...any) (string, error)

// Service exposes the gateway's query operations.
type Service struct {
	fetcher Fetcher
	key     KeyBuilder
}

// NewService constructs a Service.
func NewService(fetcher Fetcher, key KeyBuilder) *Service {
	return &Service{fetcher: fetcher, key: key}
}

// PostsInput captures a subreddit listing request.
type PostsInput struct {
	Subreddit string
	Sort      string // hot, new, top, rising
	TimeRange string // top only: hour, day, week, month, year, all
	Limit     int
}

// Posts fetches a subreddit listing.
func (s *Service) Posts(ctx context.Context, input PostsInput) ([]Post, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(input.Subreddit), "r/")
	if !subredditPattern.MatchString(sub) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubreddit, input.Subreddit)
	}

	sort := strings.ToLower(strings.TrimSpace(input.Sort))
	if sort == "" {
		sort = "hot"
	}
	switch sort {
	case "hot", "new", "top", "rising":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, input.Sort)
	}

	timeRange := strings.ToLower(strings.TrimSpace(input.TimeRange))
	if sort == "top" {
		if timeRange == "" {
			timeRange = "day"
		}
		switch timeRange {
		case "hour", "day", "week", "month", "year", "all":
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimeRange, input.TimeRange)
		}
	} else {
		timeRange = ""
	}

	limit := clampLimit(input.Limit)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	if timeRange != "" {
		query.Set("t", timeRange)
	}
	endpoint := fmt.Sprintf("/r/%s/%s.json?%s", sub, sort, query.Encode())

	keyParts := []any{"posts", sub, sort}
	if timeRange != "" {
		keyParts = append(keyParts, timeRange)
	}
	keyParts = append(keyParts, limit)
	key, err := s.key(keyParts...)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	raw, err := s.fetcher.Fetch(ctx, key, endpoint)
	if err != nil {
		return nil, err
	}
	return parsePosts(raw)
}

// SearchInput captures a search request. Subreddit is optional; when set the
// search is restricted to it.
type SearchInput struct {
	Query     string
	Subreddit string
	Sort      string // relevance, hot, top, new, comments
	TimeRange string
	Limit     int
}

// Search runs a sitewide or subreddit-restricted search.
func (s *Service) Search(ctx context.Context, input SearchInput) ([]Post, error) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	sort := strings.ToLower(strings.TrimSpace(input.Sort))
	if sort == "" {
		sort = "relevance"
	}
	switch sort {
	case "relevance", "hot", "top", "new", "comments":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, input.Sort)
	}

	timeRange := strings.ToLower(strings.TrimSpace(input.TimeRange))
	if timeRange != "" {
		switch timeRange {
		case "hour", "day", "week", "month", "year", "all":
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimeRange, input.TimeRange)
		}
	}

	limit := clampLimit(input.Limit)

	query := url.Values{}
	query.Set("q", q)
	query.Set("sort", sort)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	if timeRange != "" {
		query.Set("t", timeRange)
	}

	endpoint := "/search.json?" + query.Encode()
	sub := ""
	if input.Subreddit != "" {
		sub = strings.TrimPrefix(strings.TrimSpace(input.Subreddit), "r/")
		if !subredditPattern.MatchString(sub) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSubreddit, input.Subreddit)
		}
		query.Set("restrict_sr", "1")
		endpoint = fmt.Sprintf("/r/%s/search.json?%s", sub, query.Encode())
	}

	keyParts := []any{"search", q}
	if sub != "" {
		keyParts = append(keyParts, sub)
	}
	keyParts = append(keyParts, sort)
	if timeRange != "" {
		keyParts = append(keyParts, timeRange)
	}
	keyParts = append(keyParts, limit)
	key, err := s.key(keyParts...)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	raw, err := s.fetcher.Fetch(ctx, key, endpoint)
	if err != nil {
		return nil, err
	}
	return parsePosts(raw)
}

// CommentsInput captures a comment-tree request.
type CommentsInput struct {
	Subreddit string
	PostID    string
	Sort      string // best, top, new, controversial, old, qa
	Limit     int
}

// Comments fetches a post and its comment tree.
func (s *Service) Comments(ctx context.Context, input CommentsInput) (*PostWithComments, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(input.Subreddit), "r/")
	if !subredditPattern.MatchString(sub) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubreddit, input.Subreddit)
	}

	postID := strings.ToLower(strings.TrimSpace(input.PostID))
	postID = strings.TrimPrefix(postID, "t3_")
	if !postIDPattern.MatchString(postID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPostID, input.PostID)
	}

	sort := strings.ToLower(strings.TrimSpace(input.Sort))
	if sort == "" {
		sort = "best"
	}
	switch sort {
	case "best", "top", "new", "controversial", "old", "qa":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, input.Sort)
	}

	limit := clampLimit(input.Limit)

	query := url.Values{}
	query.Set("sort", sort)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	endpoint := fmt.Sprintf("/r/%s/comments/%s.json?%s", sub, postID, query.Encode())

	key, err := s.key("comments", sub, postID, sort, limit)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	raw, err := s.fetcher.Fetch(ctx, key, endpoint)
	if err != nil {
		return nil, err
	}

	// The comments endpoint returns a two-element array: the post listing
	// followed by the comment listing.
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("decode comments payload: %w", err)
	}
	if len(pair) < 2 {
		return nil, fmt.Errorf("comments payload has %d listings, want 2", len(pair))
	}

	posts, err := parsePosts(pair[0])
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("comments payload carried no post")
	}

	comments, err := parseCommentTree(pair[1])
	if err != nil {
		return nil, err
	}

	return &PostWithComments{Post: posts[0], Comments: comments}, nil
}

// UserInput captures a user overview request.
type UserInput struct {
	Username string
	Limit    int
}

// UserOverviewResult pairs user metadata with recent activity.
type UserOverviewResult struct {
	User     UserInfo       `json:"user"`
	Activity []UserActivity `json:"activity"`
}

// UserOverview fetches a user's profile and recent posts and comments.
func (s *Service) UserOverview(ctx context.Context, input UserInput) (*UserOverviewResult, error) {
	name := strings.TrimPrefix(strings.TrimSpace(input.Username), "u/")
	if !usernamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, input.Username)
	}

	aboutKey, err := s.key("user", name, "about")
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}
	aboutRaw, err := s.fetcher.Fetch(ctx, aboutKey, fmt.Sprintf("/user/%s/about.json?raw_json=1", name))
	if err != nil {
		return nil, err
	}

	var aboutEnvelope thing
	if err := json.Unmarshal(aboutRaw, &aboutEnvelope); err != nil {
		return nil, fmt.Errorf("decode user about: %w", err)
	}
	var user UserInfo
	if err := json.Unmarshal(aboutEnvelope.Data, &user); err != nil {
		return nil, fmt.Errorf("decode user about: %w", err)
	}

	limit := clampLimit(input.Limit)
	overviewKey, err := s.key("user", name, "overview", limit)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}
	overviewRaw, err := s.fetcher.Fetch(ctx, overviewKey,
		fmt.Sprintf("/user/%s/overview.json?limit=%d&raw_json=1", name, limit))
	if err != nil {
		return nil, err
	}

	data, err := parseListing(overviewRaw)
	if err != nil {
		return nil, err
	}

	activity := make([]UserActivity, 0, len(data.Children))
	for _, child := range data.Children {
		switch child.Kind {
		case "t3":
			var post Post
			if err := json.Unmarshal(child.Data, &post); err != nil {
				return nil, fmt.Errorf("decode overview post: %w", err)
			}
			activity = append(activity, UserActivity{Type: "post", Post: &post})
		case "t1":
			var node commentNode
			if err := json.Unmarshal(child.Data, &node); err != nil {
				return nil, fmt.Errorf("decode overview comment: %w", err)
			}
			activity = append(activity, UserActivity{Type: "comment", Comment: &Comment{
				ID:         node.ID,
				Author:     node.Author,
				Body:       node.Body,
				Score:      node.Score,
				CreatedUTC: node.CreatedUTC,
				Stickied:   node.Stickied,
			}})
		}
	}

	return &UserOverviewResult{User: user, Activity: activity}, nil
}

// About fetches subreddit metadata.
func (s *Service) About(ctx context.Context, subreddit string) (*SubredditInfo, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if !subredditPattern.MatchString(sub) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubreddit, subreddit)
	}

	key, err := s.key("about", sub)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	raw, err := s.fetcher.Fetch(ctx, key, fmt.Sprintf("/r/%s/about.json?raw_json=1", sub))
	if err != nil {
		return nil, err
	}

	var envelope thing
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode subreddit about: %w", err)
	}
	if envelope.Kind != "t5" {
		return nil, fmt.Errorf("expected t5 envelope, got kind %q", envelope.Kind)
	}

	var info SubredditInfo
	if err := json.Unmarshal(envelope.Data, &info); err != nil {
		return nil, fmt.Errorf("decode subreddit about: %w", err)
	}
	return &info, nil
}

// IsInvalidInput reports whether err is a request-validation failure rather
// than an upstream one.
func IsInvalidInput(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidSubreddit, ErrInvalidUsername, ErrInvalidSort,
		ErrInvalidTimeRange, ErrEmptyQuery, ErrInvalidPostID,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
