package engine

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// decodeBody undoes Content-Encoding and converts the charset named in
// Content-Type to UTF-8. Encodings are applied in reverse listing order.
func decodeBody(body []byte, contentEncoding, contentType string) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}

	encodings := strings.Split(strings.ToLower(contentEncoding), ",")
	for i := len(encodings) - 1; i >= 0; i-- {
		enc := strings.TrimSpace(encodings[i])
		var err error
		body, err = decompress(body, enc)
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", enc, err)
		}
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	label := strings.ToLower(params["charset"])
	if label == "" || label == "utf-8" || label == "utf8" {
		return body, nil
	}
	reader, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("convert charset %s: %w", label, err)
	}
	return io.ReadAll(reader)
}

func decompress(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case "zstd":
		d, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return io.ReadAll(d)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
