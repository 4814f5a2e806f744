// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// GoParserOption configures a GoParser instance.
type GoParserOption func(*GoParser)

// WithGoMaxFileSize sets the maximum file size the parser will accept.
func WithGoMaxFileSize(bytes int64) GoParserOption {
	return func(p *GoParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithGoParseOptions applies the given ParseOptions to the parser.
func WithGoParseOptions(opts ParseOptions) GoParserOption {
	return func(p *GoParser) {
		p.parseOptions = opts
	}
}

// GoParser implements the Parser interface for Go source code.
//
// Description:
//
//	GoParser extracts function and method declarations, call sites, and
//	imports. Go's signatures make return classification exact: the result
//	list length decides between void, value, and multiple.
//
// Thread Safety:
//
//	GoParser instances are safe for concurrent use.
//
// Limitations:
//   - Function literals are not modeled as separate declarations; calls in
//     their bodies are attributed to the enclosing function.
//   - Type declarations are not extracted; composite literals are not calls.
type GoParser struct {
	maxFileSize  int64
	parseOptions ParseOptions
}

// NewGoParser creates a new GoParser with the given options.
func NewGoParser(opts ...GoParserOption) *GoParser {
	p := &GoParser{
		maxFileSize:  DefaultMaxFileSize,
		parseOptions: DefaultParseOptions(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse extracts declarations, call sites, and imports from Go source.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw Go source bytes. Must be valid UTF-8.
//   - filePath: Repo-relative path using forward slashes.
//
// Outputs:
//   - *ParseResult: Extracted declarations and metadata. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *GoParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "go", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "go",
		Hash:          hashStr,
		ParsedAtMilli: time.Now().UnixMilli(),
		Decls:         make([]*Decl, 0),
		Imports:       make([]Import, 0),
		Errors:        make([]string, 0),
	}

	rootNode := tree.RootNode()
	if rootNode == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}

	if rootNode.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	for i := 0; i < int(rootNode.ChildCount()); i++ {
		child := rootNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "package_clause":
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "package_identifier" {
					result.Package = nodeText(child.Child(j), content)
				}
			}
		case "import_declaration":
			p.extractImports(child, content, filePath, result)
		case "function_declaration":
			if fn := p.processFunction(ctx, child, content, filePath); fn != nil {
				result.Decls = append(result.Decls, fn)
			}
		case "method_declaration":
			if m := p.processMethod(ctx, child, content, filePath); m != nil {
				result.Decls = append(result.Decls, m)
			}
		}
	}

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), result.DeclCount(), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, result.DeclCount(), len(result.Errors))
	recordParseMetrics(ctx, "go", time.Since(start), result.DeclCount(), true)

	return result, nil
}

// Language returns the canonical language name for this parser.
func (p *GoParser) Language() string {
	return "go"
}

// Extensions returns the file extensions this parser handles.
func (p *GoParser) Extensions() []string {
	return []string{".go"}
}

// extractImports reads a single import declaration, grouped or not.
func (p *GoParser) extractImports(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "import_spec":
				p.processImportSpec(child, content, filePath, result)
			case "import_spec_list":
				walk(child)
			}
		}
	}
	walk(node)
}

func (p *GoParser) processImportSpec(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	var alias, path string
	var isWildcard bool
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "package_identifier":
			alias = nodeText(child, content)
		case "dot":
			isWildcard = true
		case "blank_identifier":
			alias = "_"
		case "interpreted_string_literal", "raw_string_literal":
			path = strings.Trim(nodeText(child, content), "\"`")
		}
	}
	if path == "" {
		return
	}
	result.Imports = append(result.Imports, Import{
		Path:       path,
		Alias:      alias,
		IsWildcard: isWildcard,
		Location:   nodeLocation(node, filePath),
	})
}

// processFunction extracts a top-level function declaration.
func (p *GoParser) processFunction(ctx context.Context, node *sitter.Node, content []byte, filePath string) *Decl {
	return p.processCallable(ctx, node, content, filePath, "")
}

// processMethod extracts a method declaration with its receiver type.
func (p *GoParser) processMethod(ctx context.Context, node *sitter.Node, content []byte, filePath string) *Decl {
	receiver := ""
	if recvNode := node.ChildByFieldName("receiver"); recvNode != nil {
		receiver = receiverTypeName(recvNode, content)
	}
	return p.processCallable(ctx, node, content, filePath, receiver)
}

func (p *GoParser) processCallable(ctx context.Context, node *sitter.Node, content []byte, filePath string, receiver string) *Decl {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, content)
	if name == "" {
		return nil
	}

	exported := isGoExported(name)
	if !p.parseOptions.IncludePrivate && !exported {
		return nil
	}

	params := p.extractParams(node.ChildByFieldName("parameters"), content)
	returns := classifyGoReturns(node.ChildByFieldName("result"))

	kind := DeclKindFunction
	if receiver != "" {
		kind = DeclKindMethod
	}

	// Signature text: the declaration header without the body.
	signature := ""
	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		headerEnd := int(bodyNode.StartByte())
		headerStart := int(node.StartByte())
		if headerEnd > headerStart && headerEnd <= len(content) {
			signature = strings.TrimSpace(string(content[headerStart:headerEnd]))
		}
	} else {
		signature = truncateText(nodeText(node, content), 200)
	}

	decl := &Decl{
		ID:        GenerateID(filePath, int(node.StartPoint().Row+1), name),
		Name:      name,
		Kind:      kind,
		Params:    params,
		Returns:   returns,
		Exported:  exported,
		Receiver:  receiver,
		Signature: signature,
		Location:  nodeLocation(node, filePath),
	}

	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		decl.Calls = p.extractCallsIn(ctx, bodyNode, content, filePath)
	}

	return decl
}

// extractParams flattens a parameter_list into Params. A declaration like
// "a, b int" yields two parameters sharing the declared type.
func (p *GoParser) extractParams(paramsNode *sitter.Node, content []byte) []Param {
	if paramsNode == nil {
		return nil
	}

	params := make([]Param, 0, paramsNode.ChildCount())
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		child := paramsNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "parameter_declaration":
			typeText := ""
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				typeText = nodeText(typeNode, content)
			}
			names := make([]string, 0, 2)
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					names = append(names, nodeText(child.Child(j), content))
				}
			}
			if len(names) == 0 {
				// Unnamed parameter, common in interface-shaped signatures.
				params = append(params, Param{Name: typeText, DeclaredType: typeText})
				continue
			}
			for _, n := range names {
				params = append(params, Param{Name: n, DeclaredType: typeText})
			}
		case "variadic_parameter_declaration":
			param := Param{Variadic: true}
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				param.DeclaredType = "..." + nodeText(typeNode, content)
			}
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					param.Name = nodeText(child.Child(j), content)
				}
			}
			if param.Name == "" {
				param.Name = "args"
			}
			params = append(params, param)
		}
	}
	return params
}

// classifyGoReturns maps a result node to a ReturnKind. Go signatures are
// authoritative, so no body scan is needed.
func classifyGoReturns(resultNode *sitter.Node) ReturnKind {
	if resultNode == nil {
		return ReturnKindVoid
	}
	if resultNode.Type() != "parameter_list" {
		return ReturnKindValue
	}
	count := 0
	for i := 0; i < int(resultNode.ChildCount()); i++ {
		child := resultNode.Child(i)
		if child == nil || child.Type() != "parameter_declaration" {
			continue
		}
		names := 0
		for j := 0; j < int(child.ChildCount()); j++ {
			if child.Child(j).Type() == "identifier" {
				names++
			}
		}
		if names == 0 {
			count++
		} else {
			count += names
		}
	}
	switch {
	case count == 0:
		return ReturnKindVoid
	case count == 1:
		return ReturnKindValue
	default:
		return ReturnKindMultiple
	}
}

// extractCallsIn collects call_expression nodes inside a body.
func (p *GoParser) extractCallsIn(ctx context.Context, scope *sitter.Node, content []byte, filePath string) []CallNode {
	if scope == nil || ctx.Err() != nil {
		return nil
	}

	calls := make([]CallNode, 0, 16)

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := make([]stackEntry, 0, 64)
	for i := int(scope.ChildCount()) - 1; i >= 0; i-- {
		if child := scope.Child(i); child != nil {
			stack = append(stack, stackEntry{node: child, depth: 1})
		}
	}

	nodeCount := 0
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := entry.node
		if node == nil || entry.depth > MaxCallExpressionDepth {
			continue
		}

		nodeCount++
		if nodeCount%100 == 0 && ctx.Err() != nil {
			return calls
		}

		if len(calls) >= MaxCallSitesPerBody {
			slog.Warn("max call sites per body reached",
				slog.String("file", filePath),
				slog.Int("limit", MaxCallSitesPerBody))
			return calls
		}

		if node.Type() == "call_expression" {
			if call := p.extractSingleCall(node, content, filePath); call != nil {
				calls = append(calls, *call)
			}
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}

	return calls
}

// extractSingleCall extracts one Go call expression.
func (p *GoParser) extractSingleCall(node *sitter.Node, content []byte, filePath string) *CallNode {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return nil
	}

	// Generic instantiation f[T](x): unwrap to the underlying operand.
	if funcNode.Type() == "index_expression" || funcNode.Type() == "type_arguments" {
		if operand := funcNode.ChildByFieldName("operand"); operand != nil {
			funcNode = operand
		}
	}

	call := &CallNode{
		CalleeText: truncateText(nodeText(funcNode, content), 200),
		Usage:      classifyGoUsage(node),
		Location:   nodeLocation(node, filePath),
	}

	switch funcNode.Type() {
	case "identifier":
		call.Target = nodeText(funcNode, content)
	case "selector_expression":
		if fieldNode := funcNode.ChildByFieldName("field"); fieldNode != nil {
			call.Target = nodeText(fieldNode, content)
		}
		if operandNode := funcNode.ChildByFieldName("operand"); operandNode != nil {
			call.Qualifier = truncateText(nodeText(operandNode, content), 100)
			call.IsMethod = true
		}
	default:
		call.Target = truncateText(nodeText(funcNode, content), 100)
	}

	if call.Target == "" {
		return nil
	}

	if argsNode := node.ChildByFieldName("arguments"); argsNode != nil {
		call.Args = p.extractCallArgs(argsNode, content)
	}

	return call
}

// extractCallArgs reads a Go argument_list. A trailing "..." marks the final
// argument as a spread.
func (p *GoParser) extractCallArgs(argsNode *sitter.Node, content []byte) []Arg {
	args := make([]Arg, 0, argsNode.NamedChildCount())
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "(", ")", ",", "comment":
			continue
		case "...":
			if len(args) > 0 {
				args[len(args)-1].Spread = true
			}
		default:
			args = append(args, Arg{Text: truncateText(nodeText(child, content), 200)})
		}
	}
	return args
}

// classifyGoUsage walks ancestors of a call to determine result consumption.
func classifyGoUsage(node *sitter.Node) ResultUsage {
	cur := node
	for hops := 0; hops < 12; hops++ {
		parent := cur.Parent()
		if parent == nil {
			break
		}
		switch parent.Type() {
		case "expression_statement", "go_statement", "defer_statement":
			return ResultUsageDiscarded
		case "short_var_declaration", "assignment_statement", "var_spec", "const_spec":
			return ResultUsageAssigned
		case "argument_list":
			return ResultUsageArgument
		case "return_statement":
			return ResultUsageReturned
		case "parenthesized_expression":
			cur = parent
		case "selector_expression", "call_expression", "index_expression", "type_assertion_expression":
			return ResultUsageChained
		case "if_statement", "for_statement", "binary_expression", "unary_expression", "expression_switch_statement":
			return ResultUsageCondition
		default:
			cur = parent
		}
	}
	return ResultUsageDiscarded
}

// receiverTypeName extracts the bare receiver type from a receiver list,
// stripping pointers and type parameters: "(s *Server[T])" -> "Server".
func receiverTypeName(recvNode *sitter.Node, content []byte) string {
	for i := 0; i < int(recvNode.ChildCount()); i++ {
		child := recvNode.Child(i)
		if child == nil || child.Type() != "parameter_declaration" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		text := nodeText(typeNode, content)
		text = strings.TrimPrefix(text, "*")
		if idx := strings.IndexByte(text, '['); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	return ""
}

// isGoExported reports whether a Go identifier is exported.
func isGoExported(name string) bool {
	if name == "" {
		return false
	}
	r := []rune(name)[0]
	return unicode.IsUpper(r)
}

// Compile-time interface compliance check.
var _ Parser = (*GoParser)(nil)
