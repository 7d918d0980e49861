package serial

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// Line is one line of device console output. Device log lines look like
// "[warn] pwm: ...", event ring dumps use the "EVENTS" tag.
type Line struct {
	Tag  string
	Text string
}

// ParseLine splits a console line into its bracketed tag and message.
// Untagged lines keep an empty Tag.
func ParseLine(s string) Line {
	s = strings.TrimRight(s, "\r\n")
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 0 {
			return Line{Tag: s[1:end], Text: strings.TrimPrefix(s[end+1:], " ")}
		}
	}
	return Line{Text: s}
}

// Tail reads console lines from r and hands each non-empty one to fn until
// ctx is cancelled or r fails. Read timeouts surface from tarm/serial as
// io.EOF and are retried, so r should be a port opened with a ReadTimeout.
func Tail(ctx context.Context, r io.Reader, fn func(Line)) error {
	br := bufio.NewReader(r)
	var partial strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := br.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			if s := strings.TrimSpace(partial.String()); s != "" {
				fn(ParseLine(s))
			}
			partial.Reset()
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
	}
}
