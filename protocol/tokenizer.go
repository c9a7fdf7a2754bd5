package protocol

import (
	"regexp"
	"strings"
)

// Statement is one tag and its fields as cut from a datagram payload.
type Statement struct {
	// Tag is the registered tag, an unregistered tag-shaped token, ConnectionTag,
	// or empty for text that preceded the first tag.
	Tag    string
	Fields []string
	// Raw is the statement as it appeared on the wire, terminated by ';'.
	Raw string
}

var connectionNotice = regexp.MustCompile(`^Udp Port\s+(\d+)\s+(connected|disconnected)$`)

// looksLikeTag matches lowercase letters followed by digits, 2-4 characters.
// Such tokens start a statement even when unregistered so that an unknown
// tag cannot swallow itself into the preceding statement's fields.
func looksLikeTag(token string) bool {
	if len(token) < 2 || len(token) > 4 {
		return false
	}
	i := 0
	for i < len(token) && token[i] >= 'a' && token[i] <= 'z' {
		i++
	}
	if i == 0 || i == len(token) {
		return false
	}
	for ; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}

// Tokenize splits a payload into statements in wire order.
//
// Every token is trimmed of surrounding whitespace, so line breaks between
// statements are ignored. A registered tag always starts a new statement
// unless the current statement declares it as an embedded label (wg2 inside
// wg1, rd1..rd3 inside wrd). Fields run until the next statement start. The
// empty field produced by the terminating ';' is discarded.
func Tokenize(payload string) []Statement {
	text := strings.TrimSpace(payload)
	if text == "" {
		return nil
	}

	tokens := strings.Split(text, ";")
	for i, tok := range tokens {
		tokens[i] = strings.TrimSpace(tok)
	}
	if tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	var (
		out   []Statement
		start = 0
		cur   *Statement
		spec  *tagSpec
	)

	flush := func(end int) {
		if cur == nil {
			if end > start {
				// text before the first statement start
				out = append(out, Statement{
					Fields: append([]string(nil), tokens[start:end]...),
					Raw:    strings.Join(tokens[start:end], ";") + ";",
				})
			}
			return
		}
		cur.Raw = strings.Join(tokens[start:end], ";") + ";"
		out = append(out, *cur)
		cur, spec = nil, nil
	}

	for i, tok := range tokens {
		if spec != nil && spec.embeds(tok) {
			cur.Fields = append(cur.Fields, tok)
			continue
		}

		if s, ok := registry[tok]; ok {
			flush(i)
			start = i
			cur, spec = &Statement{Tag: tok}, s
			continue
		}

		if m := connectionNotice.FindStringSubmatch(tok); m != nil {
			flush(i)
			start = i
			cur = &Statement{Tag: ConnectionTag, Fields: []string{m[1], m[2]}}
			continue
		}

		if looksLikeTag(tok) && (spec == nil || !spec.freeText) {
			flush(i)
			start = i
			cur = &Statement{Tag: tok}
			continue
		}

		if cur != nil {
			cur.Fields = append(cur.Fields, tok)
		}
	}
	flush(len(tokens))

	return out
}
