package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// lineNames turns streamed text fragments into validated, de-duplicated
// names. Only complete lines are considered until flush.
type lineNames struct {
	buf  strings.Builder
	seen map[string]struct{}
}

func (n *lineNames) feed(text string, yield func(string, error) bool) bool {
	n.buf.WriteString(text)
	s := n.buf.String()
	i := strings.LastIndexByte(s, '\n')
	if i < 0 {
		return true
	}
	complete, rest := s[:i], s[i+1:]
	n.buf.Reset()
	n.buf.WriteString(rest)

	for _, line := range strings.Split(complete, "\n") {
		if !n.emit(line, yield) {
			return false
		}
	}
	return true
}

func (n *lineNames) flush(yield func(string, error) bool) bool {
	rest := n.buf.String()
	n.buf.Reset()
	return n.emit(rest, yield)
}

func (n *lineNames) emit(line string, yield func(string, error) bool) bool {
	name := strings.ToLower(strings.TrimSpace(line))
	if !ValidName(name) {
		return true
	}
	if n.seen == nil {
		n.seen = make(map[string]struct{})
	}
	if _, ok := n.seen[name]; ok {
		return true
	}
	n.seen[name] = struct{}{}
	return yield(name, nil)
}

// streamNames reads r line by line, extracts the text fragment carried by
// each frame and yields the names it spells out. Frames that decode to ""
// are skipped.
func streamNames(ctx context.Context, r io.Reader, fragment func(line []byte) string, yield func(string, error) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var names lineNames
	for sc.Scan() {
		text := fragment(sc.Bytes())
		if text == "" {
			continue
		}
		if !names.feed(text, yield) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		yield("", err)
		return
	}
	names.flush(yield)
}

// sseData returns the payload of an SSE "data:" line, or nil.
func sseData(line []byte) []byte {
	rest, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil
	}
	return bytes.TrimSpace(rest)
}

func postJSON(ctx context.Context, hc *http.Client, url string, header http.Header, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("content-type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// HTTPError is a non-2xx answer from a generation API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(description string, count int) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt(description, ClampCount(count))},
	}
}
