package graphql

import (
	"context"

	"github.com/mercury-player/merplayer/internal/domain/track"
)

const musicFields = `
		id
		title
		artist
		cover
		url
`

const (
	allMusicsQuery = `query {
	allMusics {` + musicFields + `	}
}`

	musicQuery = `query ($id: Int!) {
	music(id: $id) {` + musicFields + `	}
}`

	createMusicMutation = `mutation ($title: String!, $artist: String!, $cover: String, $url: String!) {
	createMusic(title: $title, artist: $artist, cover: $cover, url: $url) {` + musicFields + `	}
}`

	updateMusicMutation = `mutation ($id: Int!, $title: String, $artist: String, $cover: String, $url: String) {
	updateMusic(id: $id, title: $title, artist: $artist, cover: $cover, url: $url) {` + musicFields + `	}
}`

	deleteMusicMutation = `mutation ($id: Int!) {
	deleteMusic(id: $id)
}`
)

// MusicInput is the payload for creating a catalogue entry.
type MusicInput struct {
	Title  string
	Artist string
	Cover  string
	URL    string
}

// MusicPatch updates a catalogue entry. Nil fields are left unchanged.
type MusicPatch struct {
	Title  *string
	Artist *string
	Cover  *string
	URL    *string
}

// AllMusics lists the whole catalogue as raw records.
func (c *Client) AllMusics(ctx context.Context) ([]track.RawTrack, error) {
	var data struct {
		AllMusics []track.RawTrack `json:"allMusics"`
	}
	if err := c.Execute(ctx, allMusicsQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.AllMusics, nil
}

// Music returns one catalogue entry, or nil when the id is unknown.
func (c *Client) Music(ctx context.Context, id int) (*track.RawTrack, error) {
	var data struct {
		Music *track.RawTrack `json:"music"`
	}
	if err := c.Execute(ctx, musicQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	return data.Music, nil
}

// CreateMusic adds an entry and returns it with its assigned id.
func (c *Client) CreateMusic(ctx context.Context, in MusicInput) (*track.RawTrack, error) {
	vars := map[string]any{
		"title":  in.Title,
		"artist": in.Artist,
		"url":    in.URL,
	}
	if in.Cover != "" {
		vars["cover"] = in.Cover
	}

	var data struct {
		CreateMusic *track.RawTrack `json:"createMusic"`
	}
	if err := c.Execute(ctx, createMusicMutation, vars, &data); err != nil {
		return nil, err
	}
	return data.CreateMusic, nil
}

// UpdateMusic applies patch to entry id and returns the updated entry.
func (c *Client) UpdateMusic(ctx context.Context, id int, patch MusicPatch) (*track.RawTrack, error) {
	vars := map[string]any{"id": id}
	setIf(vars, "title", patch.Title)
	setIf(vars, "artist", patch.Artist)
	setIf(vars, "cover", patch.Cover)
	setIf(vars, "url", patch.URL)

	var data struct {
		UpdateMusic *track.RawTrack `json:"updateMusic"`
	}
	if err := c.Execute(ctx, updateMusicMutation, vars, &data); err != nil {
		return nil, err
	}
	return data.UpdateMusic, nil
}

// DeleteMusic removes entry id.
func (c *Client) DeleteMusic(ctx context.Context, id int) (bool, error) {
	var data struct {
		DeleteMusic bool `json:"deleteMusic"`
	}
	if err := c.Execute(ctx, deleteMusicMutation, map[string]any{"id": id}, &data); err != nil {
		return false, err
	}
	return data.DeleteMusic, nil
}

func setIf(vars map[string]any, key string, v *string) {
	if v != nil {
		vars[key] = *v
	}
}
