// Package graphql parses GraphQL executable documents.
package graphql

import (
	"errors"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Commas are insignificant in GraphQL and are dropped with whitespace.
var documentLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "BlockString", Pattern: `"""(?s:.*?)"""`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Float", Pattern: `-?\d+(\.\d+([eE][+-]?\d+)?|[eE][+-]?\d+)`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Variable", Pattern: `\$[_A-Za-z][_0-9A-Za-z]*`},
	{Name: "Spread", Pattern: `\.\.\.`},
	{Name: "Ident", Pattern: `[_A-Za-z][_0-9A-Za-z]*`},
	{Name: "Punct", Pattern: `[!(){}\[\]:=@|&]`},
	{Name: "Whitespace", Pattern: `[\s,\x{FEFF}]+`},
})

var documentParser = participle.MustBuild[Document](
	participle.Lexer(documentLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// SyntaxError is a parse failure with the position it occurred at.
type SyntaxError struct {
	Pos     lexer.Position
	Message string
}

func (e *SyntaxError) Error() string {
	return e.Pos.String() + ": " + e.Message
}

// Parse parses a query document.
func Parse(text string) (*Document, error) {
	doc, err := documentParser.ParseString("", text)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			return nil, &SyntaxError{Pos: perr.Position(), Message: perr.Message()}
		}
		return nil, &SyntaxError{Message: err.Error()}
	}
	return doc, nil
}
