package parser

import (
	"pyslim/internal/errors"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Parser turns Python source into the analyzer's source model.
type Parser struct {
	language *sitter.Language
}

func NewParser() *Parser {
	return &Parser{language: Language()}
}

// Language returns the shared Python grammar.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_python.Language())
}

// ParseTree parses content and returns the raw syntax tree. The caller owns
// the tree and must Close it.
func ParseTree(content []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(Language())

	tree := p.Parse(content, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeInternal, "parse failed")
	}
	return tree, nil
}

func (p *Parser) IsSupportedPath(path string) bool {
	return strings.HasSuffix(path, ".py")
}

// ParseFile parses a single module. A tree containing error nodes yields a
// CodeSyntaxError: the file cannot be analyzed and the run must not produce
// output.
func (p *Parser) ParseFile(path string, content []byte) (*File, error) {
	tree, err := ParseTree(content)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errors.New(errors.CodeSyntaxError, "file does not parse").
			WithContext(errors.CtxPath, path)
	}

	extractor := NewPythonExtractor()
	file, err := extractor.Extract(root, content, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "extraction failed")
	}
	return file, nil
}
