package media

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"cobiv/internal/filesystem"
	"cobiv/internal/logging"
)

// TagsKeyword is the PNG text keyword holding comma separated tags.
const TagsKeyword = "tags"

// maxTextChunk bounds the text chunks read into memory.
const maxTextChunk = 1 << 20

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ReadEmbeddedTags returns the tags stored in a PNG text chunk (tEXt, zTXt
// or iTXt) with keyword "tags". Files in other formats have no embedded tags
// and yield an empty result.
func ReadEmbeddedTags(path string) ([]string, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	texts, err := readPNGText(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var tags []string
	for _, text := range texts[TagsKeyword] {
		for _, tag := range strings.Split(text, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

// readPNGText collects text chunk values by keyword. A stream without the
// PNG signature yields no entries.
func readPNGText(r io.Reader) (map[string][]string, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, nil
	}

	texts := make(map[string][]string)
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				return texts, nil
			}
			return texts, fmt.Errorf("truncated chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		kind := string(header[4:8])

		switch kind {
		case "IEND":
			return texts, nil
		case "tEXt", "zTXt", "iTXt":
			if length > maxTextChunk {
				if err := skip(r, int64(length)+4); err != nil {
					return texts, err
				}
				continue
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return texts, fmt.Errorf("truncated %s chunk: %w", kind, err)
			}
			if err := skip(r, 4); err != nil { // crc
				return texts, err
			}
			keyword, value, err := decodeTextChunk(kind, data)
			if err != nil {
				logging.Debug("skipping malformed %s chunk: %v", kind, err)
				continue
			}
			texts[keyword] = append(texts[keyword], value)
		default:
			if err := skip(r, int64(length)+4); err != nil {
				return texts, err
			}
		}
	}
}

func decodeTextChunk(kind string, data []byte) (keyword, value string, err error) {
	key, rest, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return "", "", errors.New("missing keyword separator")
	}
	keyword = string(key)

	switch kind {
	case "tEXt":
		return keyword, latin1(rest), nil
	case "zTXt":
		if len(rest) < 1 {
			return "", "", errors.New("missing compression method")
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return "", "", err
		}
		return keyword, latin1(text), nil
	default: // iTXt
		if len(rest) < 2 {
			return "", "", errors.New("missing compression flags")
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// language tag, then translated keyword
		for n := 0; n < 2; n++ {
			_, after, ok := bytes.Cut(rest, []byte{0})
			if !ok {
				return "", "", errors.New("missing iTXt separator")
			}
			rest = after
		}
		if compressed {
			text, err := inflate(rest)
			if err != nil {
				return "", "", err
			}
			return keyword, string(text), nil
		}
		return keyword, string(rest), nil
	}
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(io.LimitReader(zr, maxTextChunk))
}

// latin1 converts ISO 8859-1 bytes, the encoding of tEXt and zTXt, to UTF-8.
func latin1(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func skip(r io.Reader, n int64) error {
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("truncated chunk: %w", err)
	}
	return nil
}
