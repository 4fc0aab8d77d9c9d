package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnwrapResponse strips a markdown code fence from a model reply. It copes
// with a missing fence, a ```json or bare ``` opener, a missing closing
// fence, and prose before or after the fenced block.
func UnwrapResponse(text string) string {
	text = strings.TrimSpace(text)

	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}

	body := text[open+3:]
	// Drop the info string (json, JSON, javascript...) on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if info := strings.TrimSpace(body[:nl]); !strings.ContainsAny(info, "{[") {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// decodeModelJSON unwraps a model reply and decodes it into v. When the
// reply is not clean JSON it falls back to the first balanced object or
// array in the text.
func decodeModelJSON(text string, v any) error {
	body := UnwrapResponse(text)
	if body == "" {
		return &ExtractionError{
			Code:    ErrModelEmptyResponse,
			Message: "model returned an empty response",
			Method:  "gemini",
		}
	}

	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}

	if err := extractJSON(body, v); err != nil {
		return &ExtractionError{
			Code:    ErrMalformedResponse,
			Message: fmt.Sprintf("parse model response (text: %s)", body[:min(len(body), 200)]),
			Method:  "gemini",
			Cause:   err,
		}
	}
	return nil
}

// extractJSON finds the first balanced JSON object or array in text and
// decodes it into v.
func extractJSON(text string, v any) error {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return fmt.Errorf("no JSON object found in response")
	}

	openCh, closeCh := byte('{'), byte('}')
	if text[start] == '[' {
		openCh, closeCh = '[', ']'
	}

	depth := 0
	inString := false
	escaped := false
	end := -1
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if end == -1 {
		return fmt.Errorf("unbalanced JSON in response")
	}
	return json.Unmarshal([]byte(text[start:end]), v)
}
