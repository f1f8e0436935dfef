// Package artwork extracts cover images embedded in audio tags and turns them
// into self-contained, directly renderable image references.
package artwork

import (
	"bytes"
	"strings"
)

const unknownMime = "application/octet-stream"

// signature matches magic bytes at offset.
type signature struct {
	offset int
	magic  []byte
	mime   string
}

var signatures = []signature{
	{0, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{0, []byte("\x89PNG\r\n\x1a\n"), "image/png"},
	{0, []byte("GIF87a"), "image/gif"},
	{0, []byte("GIF89a"), "image/gif"},
	{8, []byte("WEBP"), "image/webp"}, // after RIFF + size, checked below
	{0, []byte("BM"), "image/bmp"},
}

// DetectMimeType sniffs an image MIME type from magic bytes.
func DetectMimeType(data []byte) string {
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(data) < end || !bytes.Equal(data[sig.offset:end], sig.magic) {
			continue
		}
		if sig.mime == "image/webp" && !bytes.HasPrefix(data, []byte("RIFF")) {
			continue
		}
		// "BM" alone is too weak for short buffers.
		if sig.mime == "image/bmp" && len(data) < 14 {
			continue
		}
		return sig.mime
	}
	return unknownMime
}

// normalizeMime picks the MIME type to embed in a data URI. Magic bytes win
// over the tag's declaration, which is often wrong or, in ID3v2.2, just an
// extension like "JPG".
func normalizeMime(declared string, data []byte) string {
	if detected := DetectMimeType(data); detected != unknownMime {
		return detected
	}
	switch d := strings.ToLower(strings.TrimSpace(declared)); d {
	case "", "-->":
		return "image/jpeg"
	case "jpg", "jpeg", "image/jpg":
		return "image/jpeg"
	case "png", "gif", "webp", "bmp":
		return "image/" + d
	default:
		return d
	}
}
