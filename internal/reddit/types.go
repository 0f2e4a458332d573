package reddit

import (
	"encoding/json"
	"fmt"
)

// thing is the generic Reddit API envelope: a kind tag plus a kind-specific
// data payload.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// listingData is the payload of a kind=Listing thing.
type listingData struct {
	After    string  `json:"after"`
	Children []thing `json:"children"`
}

// Post is the reshaped view of a Reddit link (kind=t3).
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio,omitempty"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext,omitempty"`
	IsSelf      bool    `json:"is_self"`
	Over18      bool    `json:"over_18"`
	Stickied    bool    `json:"stickied"`
	Flair       string  `json:"link_flair_text,omitempty"`
}

// Comment is one node of a comment tree (kind=t1). Replies are nested.
type Comment struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	Score      int       `json:"score"`
	CreatedUTC float64   `json:"created_utc"`
	Stickied   bool      `json:"stickied"`
	Replies    []Comment `json:"replies,omitempty"`
}

// PostWithComments pairs a post with its comment tree.
type PostWithComments struct {
	Post     Post      `json:"post"`
	Comments []Comment `json:"comments"`
}

// SubredditInfo is the reshaped view of a subreddit about payload (kind=t5).
type SubredditInfo struct {
	Name              string  `json:"display_name"`
	Title             string  `json:"title"`
	PublicDescription string  `json:"public_description"`
	Subscribers       int     `json:"subscribers"`
	ActiveUsers       int     `json:"active_user_count"`
	CreatedUTC        float64 `json:"created_utc"`
	Over18            bool    `json:"over18"`
	URL               string  `json:"url"`
}

// UserInfo is the reshaped view of a user about payload (kind=t2).
type UserInfo struct {
	Name         string  `json:"name"`
	CreatedUTC   float64 `json:"created_utc"`
	LinkKarma    int     `json:"link_karma"`
	CommentKarma int     `json:"comment_karma"`
	IsMod        bool    `json:"is_mod"`
	IsGold       bool    `json:"is_gold"`
}

// UserActivity is one item of a user overview: either a post or a comment,
// tagged by type.
type UserActivity struct {
	Type    string   `json:"type"`
	Post    *Post    `json:"post,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

// parseListing decodes a Listing envelope and returns its children.
func parseListing(raw json.RawMessage) (listingData, error) {
	var t thing
	if err := json.Unmarshal(raw, &t); err != nil {
		return listingData{}, fmt.Errorf("decode listing envelope: %w", err)
	}
	if t.Kind != "Listing" {
		return listingData{}, fmt.Errorf("expected Listing envelope, got kind %q", t.Kind)
	}

	var data listingData
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return listingData{}, fmt.Errorf("decode listing data: %w", err)
	}
	return data, nil
}

// parsePosts extracts the t3 children of a listing, skipping anything else.
func parsePosts(raw json.RawMessage) ([]Post, error) {
	data, err := parseListing(raw)
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(data.Children))
	for _, child := range data.Children {
		if child.Kind != "t3" {
			continue
		}
		var post Post
		if err := json.Unmarshal(child.Data, &post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// commentNode mirrors the raw t1 payload. Replies is kept raw because the
// upstream encodes "no replies" as an empty string rather than null.
type commentNode struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Stickied   bool            `json:"stickied"`
	Replies    json.RawMessage `json:"replies"`
}

// parseCommentTree walks a comment listing recursively. kind=more stubs are
// dropped; fetching collapsed continuations is a separate upstream call this
// gateway does not make.
func parseCommentTree(raw json.RawMessage) ([]Comment, error) {
	if len(raw) == 0 || raw[0] == '"' {
		return nil, nil
	}

	data, err := parseListing(raw)
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(data.Children))
	for _, child := range data.Children {
		if child.Kind != "t1" {
			continue
		}

		var node commentNode
		if err := json.Unmarshal(child.Data, &node); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}

		replies, err := parseCommentTree(node.Replies)
		if err != nil {
			return nil, err
		}

		comments = append(comments, Comment{
			ID:         node.ID,
			Author:     node.Author,
			Body:       node.Body,
			Score:      node.Score,
			CreatedUTC: node.CreatedUTC,
			Stickied:   node.Stickied,
			Replies:    replies,
		})
	}
	return comments, nil
}
