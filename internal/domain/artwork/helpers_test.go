package artwork_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// id3Frame builds an ID3v2.3 frame.
func id3Frame(id string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.Write([]byte{0, 0})
	buf.Write(body)
	return buf.Bytes()
}

func textFrame(id, text string) []byte {
	return id3Frame(id, append([]byte{0x00}, text...))
}

func apicFrame(mime string, data []byte) []byte {
	var body bytes.Buffer
	body.WriteByte(0x00) // ISO-8859-1
	body.WriteString(mime)
	body.WriteByte(0x00)
	body.WriteByte(0x03) // front cover
	body.WriteByte(0x00) // empty description
	body.Write(data)
	return id3Frame("APIC", body.Bytes())
}

// buildMP3 returns an ID3v2.3 tagged buffer followed by a few fake audio bytes.
func buildMP3(frames ...[]byte) []byte {
	var payload bytes.Buffer
	for _, f := range frames {
		payload.Write(f)
	}
	size := payload.Len()

	var buf bytes.Buffer
	buf.WriteString("ID3")
	buf.Write([]byte{0x03, 0x00, 0x00})
	buf.Write([]byte{
		byte(size>>21) & 0x7F,
		byte(size>>14) & 0x7F,
		byte(size>>7) & 0x7F,
		byte(size) & 0x7F,
	})
	buf.Write(payload.Bytes())
	buf.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, image.White)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}
