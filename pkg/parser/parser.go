// Package parser provides YAVM assembly parsing using Participle v2.
// Grammar is defined as Go structs with tags.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// AST Node types - parsed from source, assembled into words by package asm

// Program is the top-level AST node
type Program struct {
	Lines []*Line `@@*`
}

// Line is one source line: an optional label followed by an optional
// directive or instruction.
type Line struct {
	Pos lexer.Position

	Label       *string      `@Label?`
	Directive   *Directive   `( @@`
	Instruction *Instruction `| @@ )? EOL`
}

// Directive: .name operand, operand ...
type Directive struct {
	Pos lexer.Position

	Name     string     `@Directive`
	Operands []*Operand `( @@ ( "," @@ )* )?`
}

// Instruction: mnemonic operand, operand ...
type Instruction struct {
	Pos lexer.Position

	Mnemonic string     `@Ident`
	Operands []*Operand `( @@ ( "," @@ )* )?`
}

// Operand is a register, a number or a symbol (label or method name).
type Operand struct {
	Pos lexer.Position

	Register *string `  @Register`
	Float    *string `| @Float`
	Int      *string `| @Int`
	Symbol   *string `| @Ident`
}

// YAVM lexer definition
var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Skip whitespace and comments, keep newlines
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "EOL", Pattern: `\n`},

	{Name: "Label", Pattern: `[A-Za-z_][A-Za-z0-9_.]*:`},
	{Name: "Directive", Pattern: `\.[A-Za-z]+`},
	{Name: "Register", Pattern: `[rR][0-9]+\b`},

	// Literals
	{Name: "Float", Pattern: `[-+]?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`},
	{Name: "Int", Pattern: `[-+]?(0[xX][0-9a-fA-F]+|[0-9]+)`},

	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Punct", Pattern: `,`},
})

// Parser is the YAVM assembly parser
var Parser = participle.MustBuild[Program](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses YAVM assembly into a Program AST
func Parse(source string) (*Program, error) {
	return ParseNamed("", source)
}

// ParseNamed parses source, reporting positions against filename
func ParseNamed(filename, source string) (*Program, error) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return Parser.ParseString(filename, source)
}

// LabelName returns the label without its trailing colon
func (l *Line) LabelName() string {
	if l.Label == nil {
		return ""
	}
	return strings.TrimSuffix(*l.Label, ":")
}

// Empty reports whether the line carries no directive or instruction
func (l *Line) Empty() bool {
	return l.Directive == nil && l.Instruction == nil
}

// RegisterIndex returns the register number of a register operand
func (o *Operand) RegisterIndex() (int, error) {
	if o.Register == nil {
		return 0, fmt.Errorf("expected register, got %s", o)
	}
	n, err := strconv.Atoi((*o.Register)[1:])
	if err != nil || n > 255 {
		return 0, fmt.Errorf("invalid register %s", *o.Register)
	}
	return n, nil
}

// IntValue returns the value of an integer operand
func (o *Operand) IntValue() (int64, error) {
	if o.Int == nil {
		return 0, fmt.Errorf("expected integer, got %s", o)
	}
	return strconv.ParseInt(*o.Int, 0, 64)
}

// FloatValue returns the value of a float or integer operand
func (o *Operand) FloatValue() (float64, error) {
	switch {
	case o.Float != nil:
		return strconv.ParseFloat(*o.Float, 32)
	case o.Int != nil:
		n, err := o.IntValue()
		return float64(n), err
	}
	return 0, fmt.Errorf("expected number, got %s", o)
}

func (o *Operand) String() string {
	switch {
	case o.Register != nil:
		return *o.Register
	case o.Float != nil:
		return *o.Float
	case o.Int != nil:
		return *o.Int
	case o.Symbol != nil:
		return *o.Symbol
	}
	return "<nothing>"
}
