package mcp

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxTitleRunes    = 256
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", client.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func normalizedMaxContentBytes(raw int64) int64 {
	if raw <= 0 {
		return defaultMaxContentBytes
	}
	return raw
}

func requireRef(field, raw string) (api.Ref, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", invalidArgument("%s is required", field)
	}
	return api.Ref(v), nil
}

func validateTitle(field, raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", invalidArgument("%s is required", field)
	}
	if n := utf8.RuneCountInString(title); n > maxTitleRunes {
		return "", invalidArgument("%s is %d characters, at most %d allowed", field, n, maxTitleRunes)
	}
	return title, nil
}

// listLimit maps an omitted limit to the default and rejects values outside 1..1000.
func listLimit(raw *int) (int, error) {
	if raw == nil {
		return defaultListLimit, nil
	}
	if *raw < 1 || *raw > maxListLimit {
		return 0, invalidArgument("limit must be between 1 and %d, got %d", maxListLimit, *raw)
	}
	return *raw, nil
}

func validatePriority(p int) error {
	if p < api.PriorityNoPriority || p > api.PriorityLow {
		return invalidArgument("priority must be between %d and %d, got %d", api.PriorityNoPriority, api.PriorityLow, p)
	}
	return nil
}

func (s *server) validateContent(field string, size int) error {
	limit := normalizedMaxContentBytes(s.cfg.MaxContentBytes)
	if int64(size) <= limit {
		return nil
	}
	return invalidArgument("%s is %s and exceeds the %s limit", field, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

// objectClass accepts the shorthands issue and document or a full class id.
func objectClass(raw string) (api.Class, error) {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "":
		return "", invalidArgument("object_class is required")
	case "issue":
		return api.ClassIssue, nil
	case "document", "doc":
		return api.ClassDocument, nil
	}
	if !strings.Contains(v, ":class:") {
		return "", invalidArgument("object_class %q is neither issue, document nor a class id", v)
	}
	return api.Class(v), nil
}

// decodePayload returns the attachment bytes from exactly one of text or base64.
func decodePayload(text, b64 string) ([]byte, error) {
	hasText, hasB64 := text != "", strings.TrimSpace(b64) != ""
	switch {
	case hasText && hasB64:
		return nil, invalidArgument("content_text and content_base64 are mutually exclusive")
	case hasText:
		return []byte(text), nil
	case hasB64:
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			return nil, invalidArgument("decode content_base64: %v", err)
		}
		return data, nil
	}
	return nil, invalidArgument("one of content_text or content_base64 is required")
}
