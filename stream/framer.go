// Package stream encodes an in-progress generation as line-oriented wire
// frames. One frame per line: `0:` carries a JSON-escaped content string,
// `d:` carries completion metadata. The byte shapes are a client
// compatibility contract; the synthetic usage numbers on boundary frames are
// not meaningful.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type completion struct {
	FinishReason string `json:"finishReason"`
	Usage        *usage `json:"usage,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Framer writes frames to a transport, flushing after every frame so chunks
// reach the client as they are produced. It is not safe for concurrent use;
// one response stream has one writer.
type Framer struct {
	w    io.Writer
	f    http.Flusher
	done bool
}

// NewFramer wraps a transport writer. The flusher may be nil in tests.
func NewFramer(w io.Writer, f http.Flusher) *Framer {
	return &Framer{w: w, f: f}
}

// Chunk emits one content frame. Empty chunks are dropped: content frames
// carry non-empty payload only.
func (fr *Framer) Chunk(text string) error {
	if fr.done || text == "" {
		return nil
	}
	return fr.write("0:", text)
}

// Boundary marks the end of one logical message and the start of the next
// within a single response: a continue-completion frame followed by an empty
// content frame the client uses to open a new message.
func (fr *Framer) Boundary() error {
	if fr.done {
		return nil
	}
	if err := fr.write("d:", completion{FinishReason: "continue", Usage: &usage{}}); err != nil {
		return err
	}
	return fr.write("0:", "")
}

// Done emits the terminal frame and ends the stream. Further writes no-op.
func (fr *Framer) Done() error {
	if fr.done {
		return nil
	}
	fr.done = true
	return fr.write("d:", completion{FinishReason: "stop"})
}

// Fail ends the stream on an internal failure: the sanitized message is sent
// as a content frame so the client renders it, followed by the terminal
// frame. The underlying cause is the caller's to log, never to transmit.
func (fr *Framer) Fail(message string) error {
	if fr.done {
		return nil
	}
	if err := fr.write("0:", message); err != nil {
		return err
	}
	return fr.Done()
}

func (fr *Framer) write(marker string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(fr.w, "%s%s\n", marker, data); err != nil {
		return err
	}
	if fr.f != nil {
		fr.f.Flush()
	}
	return nil
}
