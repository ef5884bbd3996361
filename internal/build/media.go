package build

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type mediaGroup struct {
	query string
	body  bytes.Buffer
}

// MergeMediaQueries combines top-level @media blocks that share a query.
// Merged blocks are appended after the remaining rules, in the order their
// query first appeared. Nested @media rules are left in place.
func MergeMediaQueries(src []byte) ([]byte, error) {
	lexer := css.NewLexer(parse.NewInputBytes(src))

	var (
		out    bytes.Buffer
		groups []*mediaGroup
		index  = make(map[string]*mediaGroup)
		depth  int
	)

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parsing css: %w", err)
			}
			break
		}

		if depth == 0 && tt == css.AtKeywordToken && strings.EqualFold(string(data), "@media") {
			query, err := readMediaQuery(lexer)
			if err != nil {
				return nil, err
			}
			group, ok := index[query]
			if !ok {
				group = &mediaGroup{query: query}
				index[query] = group
				groups = append(groups, group)
			}
			if err := readBlock(lexer, &group.body); err != nil {
				return nil, fmt.Errorf("@media %s: %w", query, err)
			}
			continue
		}

		switch tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
		}
		out.Write(data)
	}

	for _, g := range groups {
		out.WriteString("@media ")
		out.WriteString(g.query)
		out.WriteByte('{')
		out.Write(g.body.Bytes())
		out.WriteByte('}')
	}

	return out.Bytes(), nil
}

// readMediaQuery consumes the prelude up to the opening brace and returns it
// with whitespace collapsed.
func readMediaQuery(lexer *css.Lexer) (string, error) {
	var query strings.Builder
	pendingSpace := false

	for {
		tt, data := lexer.Next()
		switch tt {
		case css.ErrorToken:
			return "", fmt.Errorf("unterminated @media prelude")
		case css.LeftBraceToken:
			return strings.TrimSpace(query.String()), nil
		case css.WhitespaceToken, css.CommentToken:
			pendingSpace = query.Len() > 0
		default:
			if pendingSpace {
				query.WriteByte(' ')
				pendingSpace = false
			}
			query.Write(data)
		}
	}
}

// readBlock copies tokens into body until the brace matching the already
// consumed opening brace.
func readBlock(lexer *css.Lexer, body *bytes.Buffer) error {
	depth := 1
	for {
		tt, data := lexer.Next()
		switch tt {
		case css.ErrorToken:
			return fmt.Errorf("unterminated block")
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
			if depth == 0 {
				return nil
			}
		}
		body.Write(data)
	}
}
