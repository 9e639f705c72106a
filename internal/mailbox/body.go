package mailbox

import (
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	gmail "google.golang.org/api/gmail/v1"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// PayloadText returns the text of a Gmail message payload. A text/plain part
// anywhere in the tree wins; otherwise the first text/html part is rendered
// to text.
func PayloadText(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if s, ok := findPayloadPart(payload, mimeTextPlain); ok {
		return strings.TrimSpace(s)
	}
	if s, ok := findPayloadPart(payload, mimeTextHTML); ok {
		return HTMLText(s)
	}
	return ""
}

func findPayloadPart(part *gmail.MessagePart, mimeType string) (string, bool) {
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		data, err := decodeBodyData(part.Body.Data)
		if err == nil {
			return strings.ToValidUTF8(string(data), ""), true
		}
	}
	for _, child := range part.Parts {
		if s, ok := findPayloadPart(child, mimeType); ok {
			return s, true
		}
	}
	return "", false
}

// decodeBodyData decodes Gmail's base64url body data, padded or not
func decodeBodyData(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body data: %w", err)
	}
	return b, nil
}

// payloadHeader returns the first top-level header with the given name
func payloadHeader(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ReadMessage parses a raw RFC 5322 message. The body text is chosen the
// same way PayloadText does for Gmail payloads.
func ReadMessage(r io.Reader) (Message, error) {
	// an unknown charset or transfer encoding still yields a readable entity
	entity, err := message.Read(r)
	if entity == nil {
		return Message{}, fmt.Errorf("failed to read message: %w", err)
	}

	body, err := entityText(entity)
	if err != nil {
		return Message{}, err
	}
	return Message{From: entity.Header.Get("From"), Body: body}, nil
}

func entityText(entity *message.Entity) (string, error) {
	var plain, htmlBody string
	var havePlain, haveHTML bool
	walkErr := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && part == nil {
			return err
		}

		mediaType, _, _ := part.Header.ContentType()
		if mediaType == "" {
			mediaType = mimeTextPlain
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}
		if (mediaType == mimeTextPlain && havePlain) || (mediaType == mimeTextHTML && haveHTML) {
			return nil
		}
		if mediaType != mimeTextPlain && mediaType != mimeTextHTML {
			return nil
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("failed to read part body: %w", err)
		}
		text := strings.ToValidUTF8(string(content), "")
		if mediaType == mimeTextPlain {
			plain, havePlain = text, true
		} else {
			htmlBody, haveHTML = text, true
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}

	switch {
	case havePlain:
		return strings.TrimSpace(plain), nil
	case haveHTML:
		return HTMLText(htmlBody), nil
	}
	return "", nil
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// HTMLText strips markup from an HTML document and returns its visible text
func HTMLText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))

	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeText(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch a {
			case atom.Script, atom.Style, atom.Head, atom.Title:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case atom.Br, atom.P, atom.Div, atom.Tr, atom.Li, atom.Table,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteByte('\n')
			case atom.Td, atom.Th:
				b.WriteByte(' ')
			}
		}
	}
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
