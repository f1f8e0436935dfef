package artwork

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/track"
)

// ErrNoPicture marks audio whose tags carry no picture.
var ErrNoPicture = errors.New("no embedded picture")

// Source values reported in a Result.
const (
	SourceEmbedded    = "embedded"
	SourcePlaceholder = "placeholder"
)

// Picture is an embedded image.
type Picture struct {
	MIMEType string
	Data     []byte
}

// DataURI encodes the picture as a self-contained data URI.
func (p *Picture) DataURI() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Metadata is the subset of tag metadata the player cares about.
type Metadata struct {
	Title   string
	Artist  string
	Picture *Picture // nil when no picture is embedded
}

// Parse reads tag metadata from an in-memory audio buffer. Malformed input
// that makes the tag reader panic is reported as an error.
func Parse(data []byte) (md *Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			md, err = nil, fmt.Errorf("read tags: malformed input: %v", r)
		}
	}()

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	md = &Metadata{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		md.Picture = &Picture{
			MIMEType: normalizeMime(pic.MIMEType, pic.Data),
			Data:     pic.Data,
		}
	}
	return md, nil
}

// Result is the outcome of a cover extraction. Cover is always usable.
type Result struct {
	Cover  string // data URI of the embedded picture, or track.Placeholder
	Source string // SourceEmbedded or SourcePlaceholder
	Title  string // tag title, empty when unknown
	Artist string // tag artist, empty when unknown
}

// Found reports whether a real embedded picture was extracted.
func (r Result) Found() bool {
	return r.Source == SourceEmbedded
}

// Extractor turns raw audio bytes into a displayable cover.
type Extractor struct {
	maxDim int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxDimension downscales embedded pictures larger than px on either side.
// Zero keeps pictures untouched.
func WithMaxDimension(px int) ExtractorOption {
	return func(e *Extractor) {
		e.maxDim = px
	}
}

// NewExtractor creates a new cover extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract selects the first embedded picture and encodes it as a data URI.
// Parse failures and pictureless files yield the placeholder; Extract never
// fails.
func (e *Extractor) Extract(data []byte) Result {
	md, err := Parse(data)
	if err != nil {
		log.Debug().Err(err).Int("bytes", len(data)).Msg("Tag parsing failed, using placeholder cover")
		return placeholder()
	}

	res := Result{Title: md.Title, Artist: md.Artist}
	if md.Picture == nil {
		log.Debug().Err(ErrNoPicture).Msg("Audio has no embedded cover")
		res.Cover = track.Placeholder
		res.Source = SourcePlaceholder
		return res
	}

	pic := md.Picture
	if e.maxDim > 0 {
		if scaled, mime, err := Downscale(pic.Data, e.maxDim); err != nil {
			log.Debug().Err(err).Msg("Cover downscale failed, embedding original")
		} else {
			pic = &Picture{MIMEType: mime, Data: scaled}
		}
	}

	res.Cover = pic.DataURI()
	res.Source = SourceEmbedded
	return res
}

func placeholder() Result {
	return Result{Cover: track.Placeholder, Source: SourcePlaceholder}
}
