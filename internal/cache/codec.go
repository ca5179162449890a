package cache

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/rs/zerolog"
)

// codec serializes cache payloads. Payloads arrive as already-encoded JSON
// bytes; the codec optionally wraps them in gzip.
type codec struct {
	compress bool
	log      zerolog.Logger
}

func (c codec) encode(payload []byte) ([]byte, error) {
	if !c.compress {
		return payload, nil
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 5)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode reverses encode. A payload that fails gzip decoding is returned
// as-is: entries written before compression was switched on must stay
// readable, so the failure only warrants a warning.
func (c codec) decode(raw []byte) []byte {
	if !c.compress {
		return raw
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		c.log.Warn().Err(err).Msg("cache payload not gzip-compressed, using raw bytes")
		return raw
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache payload decompression failed, using raw bytes")
		return raw
	}
	return out
}
