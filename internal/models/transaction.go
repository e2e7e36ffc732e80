package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Blob is opaque byte content (bodies, header blocks, notes). It is carried
// as base64 in JSON so binary and control characters survive text containers.
type Blob []byte

// BlobFromString copies s into a Blob.
func BlobFromString(s string) Blob {
	return Blob(s)
}

// String returns the content as-is.
func (b Blob) String() string {
	return string(b)
}

// MarshalJSON encodes the blob as a std base64 JSON string.
func (b Blob) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// UnmarshalJSON decodes a std base64 JSON string.
func (b *Blob) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("blob: %w", err)
	}
	*b = raw
	return nil
}

// Header is one header line. Order and duplicates are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the first value for name, case-insensitively.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// String renders the headers as "Name: value" lines joined with CRLF.
func (h Headers) String() string {
	lines := make([]string, 0, len(h))
	for _, hdr := range h {
		lines = append(lines, hdr.Name+": "+hdr.Value)
	}
	return strings.Join(lines, "\r\n")
}

// ParseHeaders reads "Name: value" lines separated by CRLF or LF.
// Lines without a colon or with an empty name are dropped.
func ParseHeaders(block string) Headers {
	var out Headers
	for _, line := range strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, Header{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// Request is a captured HTTP request.
type Request struct {
	Method  string  `json:"method"`
	URL     string  `json:"url"`
	Headers Headers `json:"headers,omitempty"`
	Body    Blob    `json:"body,omitempty"`
}

// Raw renders the request in HTTP/1.1 message form.
func (r Request) Raw() []byte {
	target := r.URL
	if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
		target = u.RequestURI()
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", r.Method, target)
	writeHead(&buf, r.Headers)
	buf.Write(r.Body)
	return buf.Bytes()
}

// Response is a captured HTTP response.
type Response struct {
	StatusCode int     `json:"statusCode"`
	Headers    Headers `json:"headers,omitempty"`
	Body       Blob    `json:"body,omitempty"`
}

// StatusLine returns e.g. "HTTP/1.1 404 Not Found".
func (r Response) StatusLine() string {
	line := "HTTP/1.1 " + strconv.Itoa(r.StatusCode)
	if text := http.StatusText(r.StatusCode); text != "" {
		line += " " + text
	}
	return line
}

// Raw renders status line, headers, a blank line and the body.
func (r Response) Raw() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.StatusLine())
	buf.WriteString("\r\n")
	writeHead(&buf, r.Headers)
	buf.Write(r.Body)
	return buf.Bytes()
}

func writeHead(buf *bytes.Buffer, h Headers) {
	if len(h) > 0 {
		buf.WriteString(h.String())
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
}

// HighlightColor is one of the host tool's row highlight colours.
type HighlightColor string

const (
	HighlightNone    HighlightColor = "NONE"
	HighlightRed     HighlightColor = "RED"
	HighlightOrange  HighlightColor = "ORANGE"
	HighlightYellow  HighlightColor = "YELLOW"
	HighlightGreen   HighlightColor = "GREEN"
	HighlightCyan    HighlightColor = "CYAN"
	HighlightBlue    HighlightColor = "BLUE"
	HighlightPink    HighlightColor = "PINK"
	HighlightMagenta HighlightColor = "MAGENTA"
	HighlightGray    HighlightColor = "GRAY"
)

var highlightColors = map[HighlightColor]struct{}{
	HighlightNone: {}, HighlightRed: {}, HighlightOrange: {}, HighlightYellow: {},
	HighlightGreen: {}, HighlightCyan: {}, HighlightBlue: {}, HighlightPink: {},
	HighlightMagenta: {}, HighlightGray: {},
}

// ParseHighlightColor accepts a colour name in any case.
func ParseHighlightColor(s string) (HighlightColor, error) {
	c := HighlightColor(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := highlightColors[c]; !ok {
		return "", fmt.Errorf("unknown highlight color %q", s)
	}
	return c, nil
}

// Annotations are the user's notes and highlight on a transaction.
type Annotations struct {
	Notes          string         `json:"notes,omitempty"`
	HighlightColor HighlightColor `json:"highlightColor,omitempty"`
}

// IsEmpty reports whether neither notes nor a colour are set.
func (a Annotations) IsEmpty() bool {
	return a.Notes == "" && a.HighlightColor == ""
}

// Transaction is one captured request with an optional response and
// optional annotations.
type Transaction struct {
	Request     Request      `json:"request"`
	Response    *Response    `json:"response,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// HasResponse reports whether a response was captured.
func (t Transaction) HasResponse() bool {
	return t.Response != nil && t.Response.StatusCode > 0
}
