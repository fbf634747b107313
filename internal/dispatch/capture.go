// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"bytes"
	"io"
)

// capturingReader tees reads from an underlying reader into a bounded
// buffer so a failed forward attempt can be retried against a second node
// without buffering the whole body up front. The body streams straight
// through on the first attempt; only up to max bytes are retained for a
// possible replay, and once that cap is exceeded the retry is disabled
// rather than buffering further.
type capturingReader struct {
	src        io.Reader
	buf        bytes.Buffer
	max        int
	exceeded   bool
	reachedEOF bool
}

func newCapturingReader(src io.Reader, max int) *capturingReader {
	return &capturingReader{src: src, max: max}
}

func (c *capturingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 && !c.exceeded {
		if c.buf.Len()+n > c.max {
			c.exceeded = true
			c.buf.Reset()
		} else {
			c.buf.Write(p[:n])
		}
	}
	if err == io.EOF {
		c.reachedEOF = true
	}
	return n, err
}

// replayable reports whether the whole body was captured within the cap
// and can be replayed for a retry attempt.
func (c *capturingReader) replayable() bool {
	return c.reachedEOF && !c.exceeded
}

// replay returns a fresh reader over the captured bytes.
func (c *capturingReader) replay() io.Reader {
	return bytes.NewReader(c.buf.Bytes())
}
