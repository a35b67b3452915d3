package graphql

import "github.com/alecthomas/participle/v2/lexer"

// Document is a GraphQL executable document. The grammar accepts more
// than the engine executes so that refused constructs can be reported by
// name instead of as syntax errors.
type Document struct {
	Pos         lexer.Position
	Definitions []*Definition `parser:"@@+"`
}

type Definition struct {
	Pos       lexer.Position
	Fragment  *FragmentDefinition  `parser:"  @@"`
	Operation *OperationDefinition `parser:"| @@"`
}

// OperationDefinition is either a typed operation or a bare selection set,
// in which case Type is empty.
type OperationDefinition struct {
	Pos          lexer.Position
	Type         string                `parser:"( @('query' | 'mutation' | 'subscription')"`
	Name         string                `parser:"  @Ident?"`
	Variables    []*VariableDefinition `parser:"  ( '(' @@* ')' )?"`
	Directives   []*Directive          `parser:"  @@* )?"`
	SelectionSet *SelectionSet         `parser:"@@"`
}

type FragmentDefinition struct {
	Pos           lexer.Position
	Name          string        `parser:"'fragment' @Ident"`
	TypeCondition string        `parser:"'on' @Ident"`
	Directives    []*Directive  `parser:"@@*"`
	SelectionSet  *SelectionSet `parser:"@@"`
}

type VariableDefinition struct {
	Pos        lexer.Position
	Variable   string       `parser:"@Variable ':'"`
	Type       *TypeRef     `parser:"@@"`
	Default    *Value       `parser:"( '=' @@ )?"`
	Directives []*Directive `parser:"@@*"`
}

type TypeRef struct {
	Named   string   `parser:"( @Ident"`
	List    *TypeRef `parser:"| '[' @@ ']' )"`
	NonNull bool     `parser:"@'!'?"`
}

type SelectionSet struct {
	Pos        lexer.Position
	Selections []*Selection `parser:"'{' @@+ '}'"`
}

type Selection struct {
	Pos      lexer.Position
	Fragment *FragmentSelection `parser:"  @@"`
	Field    *Field             `parser:"| @@"`
}

// FragmentSelection is a fragment spread when Name is set and an inline
// fragment when SelectionSet is set.
type FragmentSelection struct {
	Pos           lexer.Position
	TypeCondition string        `parser:"'...' ( 'on' @Ident )?"`
	Name          string        `parser:"@Ident?"`
	Directives    []*Directive  `parser:"@@*"`
	SelectionSet  *SelectionSet `parser:"@@?"`
}

// Field holds the raw name tokens. With an alias First is the alias and
// Second the field name.
type Field struct {
	Pos          lexer.Position
	First        string        `parser:"@Ident"`
	Second       string        `parser:"( ':' @Ident )?"`
	Arguments    []*Argument   `parser:"( '(' @@* ')' )?"`
	Directives   []*Directive  `parser:"@@*"`
	SelectionSet *SelectionSet `parser:"@@?"`
}

// Name is the selected field name.
func (f *Field) Name() string {
	if f.Second != "" {
		return f.Second
	}
	return f.First
}

// Alias is the response key when one was given.
func (f *Field) Alias() string {
	if f.Second != "" {
		return f.First
	}
	return ""
}

type Argument struct {
	Pos   lexer.Position
	Name  string `parser:"@Ident ':'"`
	Value *Value `parser:"@@"`
}

type Directive struct {
	Pos       lexer.Position
	Name      string      `parser:"'@' @Ident"`
	Arguments []*Argument `parser:"( '(' @@* ')' )?"`
}

type Value struct {
	Variable *string      `parser:"  @Variable"`
	Float    *float64     `parser:"| @Float"`
	Int      *int64       `parser:"| @Int"`
	String   *string      `parser:"| @(String | BlockString)"`
	Name     *string      `parser:"| @Ident"`
	List     *ListValue   `parser:"| @@"`
	Object   *ObjectValue `parser:"| @@"`
}

type ListValue struct {
	Items []*Value `parser:"'[' @@* ']'"`
}

type ObjectValue struct {
	Fields []*ObjectField `parser:"'{' @@* '}'"`
}

type ObjectField struct {
	Name  string `parser:"@Ident ':'"`
	Value *Value `parser:"@@"`
}
