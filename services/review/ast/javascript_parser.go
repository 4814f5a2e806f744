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
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScriptParserOption configures a JavaScriptParser instance.
type JavaScriptParserOption func(*JavaScriptParser)

// WithJavaScriptMaxFileSize sets the maximum file size the parser will accept.
func WithJavaScriptMaxFileSize(bytes int64) JavaScriptParserOption {
	return func(p *JavaScriptParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithJavaScriptParseOptions applies the given ParseOptions to the parser.
func WithJavaScriptParseOptions(opts ParseOptions) JavaScriptParserOption {
	return func(p *JavaScriptParser) {
		p.parseOptions = opts
	}
}

// JavaScriptParser implements the Parser interface for JavaScript source.
//
// Description:
//
//	JavaScriptParser extracts function declarations (including arrow and
//	function expressions bound to const/let/var), classes with their methods,
//	call sites, and both ES module and CommonJS require imports.
//
// Thread Safety:
//
//	JavaScriptParser instances are safe for concurrent use.
//
// Limitations:
//   - Methods defined in object literals are not modeled as declarations.
//   - Dynamic import() specifiers are captured only when literal strings.
type JavaScriptParser struct {
	maxFileSize  int64
	parseOptions ParseOptions
}

// NewJavaScriptParser creates a new JavaScriptParser with the given options.
func NewJavaScriptParser(opts ...JavaScriptParserOption) *JavaScriptParser {
	p := &JavaScriptParser{
		maxFileSize:  DefaultMaxFileSize,
		parseOptions: DefaultParseOptions(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse extracts declarations, call sites, and imports from JavaScript source.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Repo-relative path using forward slashes.
//
// Outputs:
//   - *ParseResult: Extracted declarations and metadata. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *JavaScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "javascript", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "javascript",
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

	ex := &jsExtractor{
		content:        content,
		filePath:       filePath,
		language:       "javascript",
		includePrivate: p.parseOptions.IncludePrivate,
	}
	ex.extractTopLevel(ctx, rootNode, result)
	result.Calls = ex.extractCallsIn(ctx, rootNode)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "javascript", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "javascript", time.Since(start), result.DeclCount(), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, result.DeclCount(), len(result.Errors))
	recordParseMetrics(ctx, "javascript", time.Since(start), result.DeclCount(), true)

	return result, nil
}

// Language returns the canonical language name for this parser.
func (p *JavaScriptParser) Language() string {
	return "javascript"
}

// Extensions returns the file extensions this parser handles.
func (p *JavaScriptParser) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs"}
}

// jsExtractor holds per-parse state shared between the JavaScript and
// TypeScript parsers. The two grammars share node shapes for everything this
// package extracts; TypeScript layers type annotations on top.
type jsExtractor struct {
	content        []byte
	filePath       string
	language       string
	includePrivate bool

	// typescript enables TS-only handling: optional parameters, type
	// annotations, and annotation-driven return classification.
	typescript bool
}

// extractTopLevel walks program-level statements for declarations and imports.
func (ex *jsExtractor) extractTopLevel(ctx context.Context, root *sitter.Node, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		ex.extractStatement(ctx, child, result, nil)
	}
}

// extractStatement handles one top-level or exported statement.
func (ex *jsExtractor) extractStatement(ctx context.Context, node *sitter.Node, result *ParseResult, parent *Decl) {
	appendDecl := func(d *Decl) {
		if d == nil {
			return
		}
		if parent != nil {
			parent.Children = append(parent.Children, d)
		} else {
			result.Decls = append(result.Decls, d)
		}
	}

	switch node.Type() {
	case "import_statement":
		ex.processImport(node, result)
	case "export_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			inner := node.Child(i)
			if inner == nil {
				continue
			}
			switch inner.Type() {
			case "function_declaration", "generator_function_declaration",
				"class_declaration", "lexical_declaration", "variable_declaration":
				ex.extractStatement(ctx, inner, result, parent)
			}
		}
	case "function_declaration", "generator_function_declaration":
		appendDecl(ex.processFunctionDecl(ctx, node, ""))
	case "class_declaration":
		appendDecl(ex.processClass(ctx, node))
	case "lexical_declaration", "variable_declaration":
		for _, d := range ex.processVarBoundFunctions(ctx, node, result) {
			appendDecl(d)
		}
	}
}

// processImport reads an ES module import statement.
func (ex *jsExtractor) processImport(node *sitter.Node, result *ParseResult) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	path := strings.Trim(nodeText(sourceNode, ex.content), "\"'`")
	imp := Import{
		Path:       path,
		IsRelative: strings.HasPrefix(path, "."),
		Location:   nodeLocation(node, ex.filePath),
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			clause := child.Child(j)
			if clause == nil {
				continue
			}
			switch clause.Type() {
			case "identifier":
				// Default import acts as an alias for the module.
				imp.Alias = nodeText(clause, ex.content)
			case "namespace_import":
				for k := 0; k < int(clause.ChildCount()); k++ {
					if clause.Child(k).Type() == "identifier" {
						imp.Alias = nodeText(clause.Child(k), ex.content)
					}
				}
			case "named_imports":
				for k := 0; k < int(clause.ChildCount()); k++ {
					spec := clause.Child(k)
					if spec == nil || spec.Type() != "import_specifier" {
						continue
					}
					name := ""
					alias := ""
					if n := spec.ChildByFieldName("name"); n != nil {
						name = nodeText(n, ex.content)
					}
					if a := spec.ChildByFieldName("alias"); a != nil {
						alias = nodeText(a, ex.content)
					}
					if alias != "" {
						imp.Names = append(imp.Names, name+" as "+alias)
					} else if name != "" {
						imp.Names = append(imp.Names, name)
					}
				}
			}
		}
	}

	result.Imports = append(result.Imports, imp)
}

// processVarBoundFunctions extracts function values bound to variables:
// const f = (a) => ..., const g = function(a) {...}, const m = require("m").
func (ex *jsExtractor) processVarBoundFunctions(ctx context.Context, node *sitter.Node, result *ParseResult) []*Decl {
	var decls []*Decl

	for i := 0; i < int(node.ChildCount()); i++ {
		declarator := node.Child(i)
		if declarator == nil || declarator.Type() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		valueNode := declarator.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		name := nodeText(nameNode, ex.content)

		switch valueNode.Type() {
		case "arrow_function", "function_expression", "function", "generator_function":
			if d := ex.processFunctionValue(ctx, declarator, valueNode, name, ""); d != nil {
				decls = append(decls, d)
			}
		case "call_expression":
			// CommonJS: const x = require("mod")
			if result != nil {
				ex.maybeRequireImport(declarator, valueNode, name, result)
			}
		}
	}

	return decls
}

// maybeRequireImport records a require() binding as an import.
func (ex *jsExtractor) maybeRequireImport(declarator, callNode *sitter.Node, alias string, result *ParseResult) {
	funcNode := callNode.ChildByFieldName("function")
	if funcNode == nil || funcNode.Type() != "identifier" || nodeText(funcNode, ex.content) != "require" {
		return
	}
	argsNode := callNode.ChildByFieldName("arguments")
	if argsNode == nil {
		return
	}
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		arg := argsNode.Child(i)
		if arg == nil || arg.Type() != "string" {
			continue
		}
		path := strings.Trim(nodeText(arg, ex.content), "\"'`")
		result.Imports = append(result.Imports, Import{
			Path:       path,
			Alias:      alias,
			IsRelative: strings.HasPrefix(path, "."),
			Location:   nodeLocation(declarator, ex.filePath),
		})
		return
	}
}

// processFunctionDecl extracts a named function declaration.
func (ex *jsExtractor) processFunctionDecl(ctx context.Context, node *sitter.Node, className string) *Decl {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	return ex.buildFunction(ctx, node, nodeText(nameNode, ex.content), className, node)
}

// processFunctionValue extracts an arrow or function expression bound to a
// name. Location spans the whole declarator so diffs hit it naturally.
func (ex *jsExtractor) processFunctionValue(ctx context.Context, declarator, fnNode *sitter.Node, name, className string) *Decl {
	return ex.buildFunction(ctx, fnNode, name, className, declarator)
}

// buildFunction assembles a Decl from any function-shaped node.
func (ex *jsExtractor) buildFunction(ctx context.Context, fnNode *sitter.Node, name, className string, locNode *sitter.Node) *Decl {
	if name == "" {
		return nil
	}

	exported := ex.isExported(name)
	if !ex.includePrivate && !exported {
		return nil
	}

	isAsync := false
	for i := 0; i < int(fnNode.ChildCount()); i++ {
		if fnNode.Child(i) != nil && fnNode.Child(i).Type() == "async" {
			isAsync = true
		}
	}

	paramsNode := fnNode.ChildByFieldName("parameters")
	params := ex.extractParams(paramsNode, ex.content)
	if paramsNode == nil {
		// Single-parameter arrow without parentheses: x => ...
		if p1 := fnNode.ChildByFieldName("parameter"); p1 != nil {
			params = []Param{{Name: nodeText(p1, ex.content)}}
		}
	}

	returnTypeText := ""
	if ex.typescript {
		if rt := fnNode.ChildByFieldName("return_type"); rt != nil {
			returnTypeText = strings.TrimSpace(strings.TrimPrefix(nodeText(rt, ex.content), ":"))
		}
	}

	bodyNode := fnNode.ChildByFieldName("body")
	returns := ex.classifyReturns(bodyNode, returnTypeText)

	kind := DeclKindFunction
	if className != "" {
		kind = DeclKindMethod
	}

	signature := name
	if paramsNode != nil {
		signature = name + nodeText(paramsNode, ex.content)
	}
	if returnTypeText != "" {
		signature += ": " + returnTypeText
	}

	decl := &Decl{
		ID:        GenerateID(ex.filePath, int(locNode.StartPoint().Row+1), name),
		Name:      name,
		Kind:      kind,
		Params:    params,
		Returns:   returns,
		Exported:  exported,
		IsAsync:   isAsync,
		Receiver:  className,
		Signature: truncateText(signature, 200),
		Location:  nodeLocation(locNode, ex.filePath),
	}

	if bodyNode != nil {
		// extractCallsIn understands both statement blocks and the concise
		// expression body of an arrow function.
		decl.Calls = ex.extractCallsIn(ctx, bodyNode)
		if bodyNode.Type() == "statement_block" {
			ex.extractNestedFunctions(ctx, bodyNode, decl)
		}
	}

	return decl
}

// processClass extracts a class and its methods. The class itself is
// callable through new, so Returns is ReturnKindValue.
func (ex *jsExtractor) processClass(ctx context.Context, node *sitter.Node) *Decl {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nodeText(nameNode, ex.content)

	exported := ex.isExported(name)
	if !ex.includePrivate && !exported {
		return nil
	}

	decl := &Decl{
		ID:       GenerateID(ex.filePath, int(node.StartPoint().Row+1), name),
		Name:     name,
		Kind:     DeclKindClass,
		Returns:  ReturnKindValue,
		Exported: exported,
		Location: nodeLocation(node, ex.filePath),
		Children: make([]*Decl, 0),
	}

	bodyNode := node.ChildByFieldName("body")
	if bodyNode == nil {
		return decl
	}

	for i := 0; i < int(bodyNode.ChildCount()); i++ {
		member := bodyNode.Child(i)
		if member == nil || member.Type() != "method_definition" {
			continue
		}
		methodName := ""
		if n := member.ChildByFieldName("name"); n != nil {
			methodName = nodeText(n, ex.content)
		}
		if methodName == "" {
			continue
		}
		if method := ex.buildFunction(ctx, member, methodName, name, member); method != nil {
			decl.Children = append(decl.Children, method)
		}
	}

	return decl
}

// extractNestedFunctions attaches named functions declared at the top level
// of a body block.
func (ex *jsExtractor) extractNestedFunctions(ctx context.Context, body *sitter.Node, parent *Decl) {
	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		if stmt == nil {
			continue
		}
		switch stmt.Type() {
		case "function_declaration", "generator_function_declaration":
			if nested := ex.processFunctionDecl(ctx, stmt, ""); nested != nil {
				parent.Children = append(parent.Children, nested)
			}
		case "lexical_declaration", "variable_declaration":
			for _, nested := range ex.processVarBoundFunctions(ctx, stmt, nil) {
				parent.Children = append(parent.Children, nested)
			}
		}
	}
}

// extractParams reads formal parameters, including defaults, rest, optional
// markers, and destructuring patterns.
func (ex *jsExtractor) extractParams(paramsNode *sitter.Node, content []byte) []Param {
	if paramsNode == nil {
		return nil
	}

	params := make([]Param, 0, paramsNode.NamedChildCount())
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		child := paramsNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "(", ")", ",", "comment":
			continue
		case "identifier":
			params = append(params, Param{Name: nodeText(child, content)})
		case "assignment_pattern":
			param := Param{HasDefault: true}
			if left := child.ChildByFieldName("left"); left != nil {
				param.Name = patternName(left, content)
			}
			if param.Name != "" {
				params = append(params, param)
			}
		case "rest_pattern":
			name := "rest"
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					name = nodeText(child.Child(j), content)
				}
			}
			params = append(params, Param{Name: name, Variadic: true})
		case "object_pattern", "array_pattern":
			params = append(params, Param{Name: truncateText(nodeText(child, content), 60)})
		case "required_parameter", "optional_parameter":
			// TypeScript grammar shapes.
			params = append(params, ex.extractTSParam(child, content))
		}
	}

	// Drop empty names defensively; a malformed pattern should not produce
	// a phantom required parameter.
	out := params[:0]
	for _, p := range params {
		if p.Name != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractTSParam reads a TypeScript required_parameter or optional_parameter.
func (ex *jsExtractor) extractTSParam(node *sitter.Node, content []byte) Param {
	param := Param{Optional: node.Type() == "optional_parameter"}

	if patternNode := node.ChildByFieldName("pattern"); patternNode != nil {
		if patternNode.Type() == "rest_pattern" {
			param.Variadic = true
			for j := 0; j < int(patternNode.ChildCount()); j++ {
				if patternNode.Child(j).Type() == "identifier" {
					param.Name = nodeText(patternNode.Child(j), content)
				}
			}
		} else {
			param.Name = patternName(patternNode, content)
		}
	}
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		param.DeclaredType = strings.TrimSpace(strings.TrimPrefix(nodeText(typeNode, content), ":"))
	}
	if valueNode := node.ChildByFieldName("value"); valueNode != nil {
		param.HasDefault = true
	}

	// "this" parameters type the receiver and are never supplied by callers.
	if param.Name == "this" {
		return Param{}
	}
	return param
}

// patternName extracts a display name from a binding pattern.
func patternName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "object_pattern", "array_pattern":
		return truncateText(nodeText(node, content), 60)
	default:
		return truncateText(nodeText(node, content), 60)
	}
}

// classifyReturns determines return kind from a TS annotation when present,
// otherwise by scanning the body for value-bearing returns.
func (ex *jsExtractor) classifyReturns(body *sitter.Node, returnType string) ReturnKind {
	rt := strings.TrimSpace(returnType)
	if rt != "" {
		if rt == "void" || rt == "undefined" || rt == "never" ||
			rt == "Promise<void>" || rt == "Promise<undefined>" {
			return ReturnKindVoid
		}
		return ReturnKindValue
	}
	if body == nil {
		return ReturnKindVoid
	}

	// Concise arrow body: the expression is the return value.
	if body.Type() != "statement_block" {
		return ReturnKindValue
	}

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := []stackEntry{{node: body, depth: 0}}
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := entry.node
		if node == nil || entry.depth > MaxCallExpressionDepth {
			continue
		}
		switch node.Type() {
		case "function_declaration", "generator_function_declaration",
			"function_expression", "function", "arrow_function",
			"class_declaration", "method_definition":
			continue
		case "return_statement":
			if node.NamedChildCount() > 0 {
				return ReturnKindValue
			}
			continue
		case "yield_expression":
			return ReturnKindValue
		}
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}
	return ReturnKindVoid
}

// extractCallsIn collects call_expression nodes directly inside a scope,
// not entering nested function or class declarations.
func (ex *jsExtractor) extractCallsIn(ctx context.Context, scope *sitter.Node) []CallNode {
	if scope == nil || ctx.Err() != nil {
		return nil
	}

	calls := make([]CallNode, 0, 16)

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := make([]stackEntry, 0, 64)

	seed := func(n *sitter.Node, depth int) {
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: depth})
			}
		}
	}

	// A concise arrow body is itself an expression node to inspect.
	if scope.Type() != "statement_block" && scope.Type() != "program" {
		stack = append(stack, stackEntry{node: scope, depth: 1})
	} else {
		seed(scope, 1)
	}

	nodeCount := 0
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := entry.node
		if node == nil || entry.depth > MaxCallExpressionDepth {
			continue
		}

		switch node.Type() {
		case "function_declaration", "generator_function_declaration",
			"function_expression", "function", "arrow_function",
			"class_declaration", "method_definition":
			continue
		}

		nodeCount++
		if nodeCount%100 == 0 && ctx.Err() != nil {
			return calls
		}

		if len(calls) >= MaxCallSitesPerBody {
			slog.Warn("max call sites per body reached",
				slog.String("file", ex.filePath),
				slog.Int("limit", MaxCallSitesPerBody))
			return calls
		}

		if node.Type() == "call_expression" || node.Type() == "new_expression" {
			if call := ex.extractSingleCall(node); call != nil {
				calls = append(calls, *call)
			}
		}

		seed(node, entry.depth+1)
	}

	return calls
}

// extractSingleCall extracts one call or new expression.
func (ex *jsExtractor) extractSingleCall(node *sitter.Node) *CallNode {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		funcNode = node.ChildByFieldName("constructor")
	}
	if funcNode == nil {
		return nil
	}

	// require() bindings are recorded as imports, not reviewable calls.
	if funcNode.Type() == "identifier" && nodeText(funcNode, ex.content) == "require" {
		return nil
	}

	call := &CallNode{
		CalleeText: truncateText(nodeText(funcNode, ex.content), 200),
		Usage:      classifyJSUsage(node),
		Location:   nodeLocation(node, ex.filePath),
	}

	switch funcNode.Type() {
	case "identifier":
		call.Target = nodeText(funcNode, ex.content)
	case "member_expression":
		if propNode := funcNode.ChildByFieldName("property"); propNode != nil {
			call.Target = nodeText(propNode, ex.content)
		}
		if objNode := funcNode.ChildByFieldName("object"); objNode != nil {
			call.Qualifier = truncateText(nodeText(objNode, ex.content), 100)
			call.IsMethod = true
		}
	default:
		call.Target = truncateText(nodeText(funcNode, ex.content), 100)
	}

	if call.Target == "" {
		return nil
	}

	if argsNode := node.ChildByFieldName("arguments"); argsNode != nil {
		call.Args = ex.extractCallArgs(argsNode)
	}

	return call
}

// extractCallArgs reads a JS/TS arguments node.
func (ex *jsExtractor) extractCallArgs(argsNode *sitter.Node) []Arg {
	args := make([]Arg, 0, argsNode.NamedChildCount())
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "(", ")", ",", "comment":
			continue
		case "spread_element":
			args = append(args, Arg{Text: truncateText(nodeText(child, ex.content), 200), Spread: true})
		default:
			args = append(args, Arg{Text: truncateText(nodeText(child, ex.content), 200)})
		}
	}
	return args
}

// classifyJSUsage walks ancestors of a call to determine result consumption.
func classifyJSUsage(node *sitter.Node) ResultUsage {
	cur := node
	awaited := false
	for hops := 0; hops < 12; hops++ {
		parent := cur.Parent()
		if parent == nil {
			break
		}
		switch parent.Type() {
		case "expression_statement":
			if awaited {
				return ResultUsageAwaited
			}
			return ResultUsageDiscarded
		case "variable_declarator", "assignment_expression", "augmented_assignment_expression":
			return ResultUsageAssigned
		case "arguments":
			return ResultUsageArgument
		case "return_statement":
			return ResultUsageReturned
		case "arrow_function":
			// Concise body: the expression is implicitly returned.
			return ResultUsageReturned
		case "await_expression":
			awaited = true
			cur = parent
		case "parenthesized_expression":
			cur = parent
		case "member_expression", "call_expression", "subscript_expression", "new_expression":
			return ResultUsageChained
		case "if_statement", "while_statement", "binary_expression",
			"unary_expression", "ternary_expression", "for_statement",
			"for_in_statement":
			return ResultUsageCondition
		default:
			cur = parent
		}
	}
	if awaited {
		return ResultUsageAwaited
	}
	return ResultUsageDiscarded
}

// isExported reports whether a JS name is conventionally public. A leading
// underscore marks private by convention; everything else is public.
func (ex *jsExtractor) isExported(name string) bool {
	if name == "" {
		return false
	}
	if name == "#" || strings.HasPrefix(name, "#") {
		return false
	}
	return !strings.HasPrefix(name, "_")
}

// Compile-time interface compliance check.
var _ Parser = (*JavaScriptParser)(nil)
