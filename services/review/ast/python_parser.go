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
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
//
// Example:
//
//	parser := NewPythonParser(WithPythonMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithPythonParseOptions applies the given ParseOptions to the parser.
func WithPythonParseOptions(opts ParseOptions) PythonParserOption {
	return func(p *PythonParser) {
		p.parseOptions = opts
	}
}

// PythonParser implements the Parser interface for Python source code.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python source files and extract
//	declarations, call sites, and imports. It supports concurrent use from
//	multiple goroutines - each Parse call creates its own tree-sitter parser
//	instance internally.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Multiple goroutines
//	may call Parse simultaneously on the same PythonParser instance.
//
// Example:
//
//	parser := NewPythonParser()
//	result, err := parser.Parse(ctx, []byte("def hello(): pass"), "main.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range result.Decls {
//	    fmt.Printf("%s: %s\n", d.Kind, d.Name)
//	}
type PythonParser struct {
	maxFileSize  int64
	parseOptions ParseOptions
}

// NewPythonParser creates a new PythonParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithPythonMaxFileSize,
//     WithPythonParseOptions)
//
// Outputs:
//   - *PythonParser: Configured parser instance, never nil
//
// Thread Safety:
//
//	The returned PythonParser is safe for concurrent use.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize:  DefaultMaxFileSize,
		parseOptions: DefaultParseOptions(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse extracts declarations, call sites, and imports from Python source.
//
// Description:
//
//	Parse uses tree-sitter to parse the provided Python source code into the
//	normalized ParseResult form. The parser is error-tolerant and returns
//	partial results for syntactically invalid code, with diagnostics recorded
//	in ParseResult.Errors.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Note: Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw Python source code bytes. Must be valid UTF-8.
//   - filePath: Path to the file (for ID generation and error reporting).
//     Should be relative to project root using forward slashes.
//
// Outputs:
//   - *ParseResult: Extracted declarations and metadata. Never nil on success.
//   - error: Non-nil for complete failures:
//   - ErrFileTooLarge: Content exceeds maxFileSize
//   - ErrInvalidContent: Content is not valid UTF-8
//   - Context errors: Context was canceled or timed out
//
// Limitations:
//   - Tree-sitter parsing is synchronous and cannot be interrupted mid-parse
//   - Calls made through dynamic dispatch or metaprogramming are invisible
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// New tree-sitter parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "python",
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

	p.extractImports(rootNode, content, filePath, result)
	p.extractDecls(ctx, rootNode, content, filePath, result)
	result.Calls = p.extractCallsIn(ctx, rootNode, content, filePath)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), result.DeclCount(), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, result.DeclCount(), len(result.Errors))
	recordParseMetrics(ctx, "python", time.Since(start), result.DeclCount(), true)

	return result, nil
}

// Language returns the canonical language name for this parser.
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the file extensions this parser handles.
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// extractImports walks the entire tree (not just top-level children) so
// inline imports inside function bodies are visible to call resolution.
// Python uses inline imports to break circular dependencies.
func (p *PythonParser) extractImports(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	p.extractImportsRecursive(root, content, filePath, result, 0)
}

func (p *PythonParser) extractImportsRecursive(node *sitter.Node, content []byte, filePath string, result *ParseResult, depth int) {
	if node == nil || depth > MaxCallExpressionDepth {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			p.processImportStatement(child, content, filePath, result)
		case "import_from_statement":
			p.processImportFromStatement(child, content, filePath, result)
		default:
			p.extractImportsRecursive(child, content, filePath, result, depth+1)
		}
	}
}

// processImportStatement handles 'import foo' and 'import foo as bar'.
func (p *PythonParser) processImportStatement(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			result.Imports = append(result.Imports, Import{
				Path:     nodeText(child, content),
				Location: nodeLocation(node, filePath),
			})
		case "aliased_import":
			var path, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					path = nodeText(grandchild, content)
				case "identifier":
					alias = nodeText(grandchild, content)
				}
			}
			if path != "" {
				result.Imports = append(result.Imports, Import{
					Path:     path,
					Alias:    alias,
					Location: nodeLocation(node, filePath),
				})
			}
		}
	}
}

// processImportFromStatement handles 'from x import y' style imports.
func (p *PythonParser) processImportFromStatement(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	var modulePath string
	var names []string
	var isWildcard bool
	var isRelative bool
	var sawImport bool

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			isRelative = true
			var prefix, name string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "import_prefix":
					prefix = nodeText(grandchild, content)
				case "dotted_name":
					name = nodeText(grandchild, content)
				}
			}
			modulePath = prefix + name
		case "dotted_name":
			if !sawImport {
				modulePath = nodeText(child, content)
			} else {
				names = append(names, nodeText(child, content))
			}
		case "wildcard_import":
			isWildcard = true
		case "aliased_import":
			var importName, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "identifier":
					if importName == "" {
						importName = nodeText(grandchild, content)
					} else {
						alias = nodeText(grandchild, content)
					}
				case "dotted_name":
					if importName == "" {
						importName = nodeText(grandchild, content)
					}
				}
			}
			if alias != "" {
				names = append(names, importName+" as "+alias)
			} else if importName != "" {
				names = append(names, importName)
			}
		case "identifier":
			if sawImport {
				names = append(names, nodeText(child, content))
			}
		}
	}

	if modulePath == "" && isRelative {
		modulePath = "."
	}
	if modulePath != "" {
		result.Imports = append(result.Imports, Import{
			Path:       modulePath,
			Names:      names,
			IsWildcard: isWildcard,
			IsRelative: isRelative,
			Location:   nodeLocation(node, filePath),
		})
	}
}

// extractDecls extracts module-level functions and classes.
func (p *PythonParser) extractDecls(ctx context.Context, root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_definition":
			if fn := p.processFunction(ctx, child, content, filePath, nil, ""); fn != nil {
				result.Decls = append(result.Decls, fn)
			}
		case "class_definition":
			if cls := p.processClass(ctx, child, content, filePath); cls != nil {
				result.Decls = append(result.Decls, cls)
			}
		case "decorated_definition":
			decorators := p.extractDecorators(child, content)
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "function_definition":
					if fn := p.processFunction(ctx, grandchild, content, filePath, decorators, ""); fn != nil {
						result.Decls = append(result.Decls, fn)
					}
				case "class_definition":
					if cls := p.processClass(ctx, grandchild, content, filePath); cls != nil {
						result.Decls = append(result.Decls, cls)
					}
				}
			}
		}
	}
}

// processClass extracts a class declaration and its members.
//
// A class is callable through its constructor, so its Returns is always
// ReturnKindValue. The extractor derives the class's callable contract from
// the __init__ child when one exists.
func (p *PythonParser) processClass(ctx context.Context, node *sitter.Node, content []byte, filePath string) *Decl {
	var name string
	var bodyNode *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = nodeText(child, content)
		case "block":
			bodyNode = child
		}
	}

	if name == "" {
		return nil
	}

	exported := p.isExported(name)
	if !p.parseOptions.IncludePrivate && !exported {
		return nil
	}

	decl := &Decl{
		ID:       GenerateID(filePath, int(node.StartPoint().Row+1), name),
		Name:     name,
		Kind:     DeclKindClass,
		Returns:  ReturnKindValue,
		Exported: exported,
		Location: nodeLocation(node, filePath),
		Children: make([]*Decl, 0),
	}

	if bodyNode != nil {
		p.extractClassMembers(ctx, bodyNode, content, filePath, decl)
		decl.Calls = p.extractCallsIn(ctx, bodyNode, content, filePath)
	}

	return decl
}

// extractClassMembers extracts methods and nested classes from a class body.
func (p *PythonParser) extractClassMembers(ctx context.Context, body *sitter.Node, content []byte, filePath string, classDecl *Decl) {
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_definition":
			if method := p.processFunction(ctx, child, content, filePath, nil, classDecl.Name); method != nil {
				classDecl.Children = append(classDecl.Children, method)
			}
		case "class_definition":
			if nested := p.processClass(ctx, child, content, filePath); nested != nil {
				classDecl.Children = append(classDecl.Children, nested)
			}
		case "decorated_definition":
			decorators := p.extractDecorators(child, content)
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				if grandchild.Type() == "function_definition" {
					if method := p.processFunction(ctx, grandchild, content, filePath, decorators, classDecl.Name); method != nil {
						classDecl.Children = append(classDecl.Children, method)
					}
					break
				}
			}
		}
	}
}

// processFunction extracts a function or method declaration.
func (p *PythonParser) processFunction(ctx context.Context, node *sitter.Node, content []byte, filePath string, decorators []string, className string) *Decl {
	var name string
	var paramsNode *sitter.Node
	var paramsText string
	var returnType string
	var isAsync bool
	var bodyNode *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			isAsync = true
		case "identifier":
			name = nodeText(child, content)
		case "parameters":
			paramsNode = child
			paramsText = nodeText(child, content)
		case "type":
			returnType = nodeText(child, content)
		case "block":
			bodyNode = child
		}
	}

	if name == "" {
		return nil
	}

	exported := p.isExported(name)
	if !p.parseOptions.IncludePrivate && !exported {
		return nil
	}

	kind := DeclKindFunction
	if className != "" {
		kind = DeclKindMethod
	}

	isStatic := false
	for _, dec := range decorators {
		if dec == "staticmethod" {
			isStatic = true
		}
	}

	// Instance and class methods receive self/cls implicitly; drop the
	// receiver so parameter counts match what callers supply.
	elideReceiver := className != "" && !isStatic
	params := p.extractParams(paramsNode, content, elideReceiver)

	var signature string
	if isAsync {
		signature = fmt.Sprintf("async def %s%s", name, paramsText)
	} else {
		signature = fmt.Sprintf("def %s%s", name, paramsText)
	}
	if returnType != "" {
		signature += " -> " + returnType
	}

	decl := &Decl{
		ID:        GenerateID(filePath, int(node.StartPoint().Row+1), name),
		Name:      name,
		Kind:      kind,
		Params:    params,
		Returns:   p.classifyReturns(bodyNode, returnType),
		Exported:  exported,
		IsAsync:   isAsync,
		Receiver:  className,
		Signature: signature,
		Location:  nodeLocation(node, filePath),
	}

	if bodyNode != nil {
		decl.Calls = p.extractCallsIn(ctx, bodyNode, content, filePath)
		p.extractNestedFunctions(ctx, bodyNode, content, filePath, decl)
	}

	return decl
}

// extractNestedFunctions attaches function definitions found at the top
// level of a body block as children.
func (p *PythonParser) extractNestedFunctions(ctx context.Context, body *sitter.Node, content []byte, filePath string, parent *Decl) {
	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		switch stmt.Type() {
		case "function_definition":
			if nested := p.processFunction(ctx, stmt, content, filePath, nil, ""); nested != nil {
				parent.Children = append(parent.Children, nested)
			}
		case "decorated_definition":
			decorators := p.extractDecorators(stmt, content)
			for j := 0; j < int(stmt.ChildCount()); j++ {
				def := stmt.Child(j)
				if def.Type() == "function_definition" {
					if nested := p.processFunction(ctx, def, content, filePath, decorators, ""); nested != nil {
						parent.Children = append(parent.Children, nested)
					}
					break
				}
			}
		}
	}
}

// extractParams reads the parameter list of a function definition.
//
// Handles plain, typed, defaulted, keyword-only, and splat parameters.
// Parameters after a bare "*" separator or *args are keyword-only.
func (p *PythonParser) extractParams(paramsNode *sitter.Node, content []byte, elideReceiver bool) []Param {
	if paramsNode == nil {
		return nil
	}

	params := make([]Param, 0, paramsNode.ChildCount())
	sawStar := false
	first := true

	appendParam := func(param Param) {
		if first && elideReceiver && (param.Name == "self" || param.Name == "cls") {
			first = false
			return
		}
		first = false
		params = append(params, param)
	}

	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		child := paramsNode.Child(i)
		switch child.Type() {
		case "identifier":
			appendParam(Param{Name: nodeText(child, content), KeywordOnly: sawStar})
		case "typed_parameter":
			var param Param
			param.KeywordOnly = sawStar
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "identifier":
					param.Name = nodeText(grandchild, content)
				case "type":
					param.DeclaredType = nodeText(grandchild, content)
				}
			}
			if param.Name != "" {
				appendParam(param)
			}
		case "default_parameter", "typed_default_parameter":
			var param Param
			param.HasDefault = true
			param.KeywordOnly = sawStar
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "identifier":
					if param.Name == "" {
						param.Name = nodeText(grandchild, content)
					}
				case "type":
					param.DeclaredType = nodeText(grandchild, content)
				}
			}
			if param.Name != "" {
				appendParam(param)
			}
		case "list_splat_pattern":
			sawStar = true
			name := "args"
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					name = nodeText(child.Child(j), content)
				}
			}
			appendParam(Param{Name: name, Variadic: true})
		case "dictionary_splat_pattern":
			name := "kwargs"
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					name = nodeText(child.Child(j), content)
				}
			}
			appendParam(Param{Name: name, KeywordVariadic: true})
		case "keyword_separator":
			sawStar = true
		case "positional_separator":
			// "/" marker, no parameter of its own
		}
	}

	return params
}

// classifyReturns determines the return kind from an annotation when present,
// otherwise from return statements observed in the body.
func (p *PythonParser) classifyReturns(body *sitter.Node, returnType string) ReturnKind {
	rt := strings.TrimSpace(returnType)
	if rt != "" {
		if rt == "None" {
			return ReturnKindVoid
		}
		return ReturnKindValue
	}
	if body == nil {
		return ReturnKindVoid
	}

	// Scan for value-bearing return or yield statements. Nested function and
	// class bodies have their own return kinds and are skipped.
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
		case "function_definition", "class_definition", "lambda":
			continue
		case "return_statement":
			// A bare "return" has only the keyword child.
			if node.NamedChildCount() > 0 {
				return ReturnKindValue
			}
			continue
		case "yield":
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

// extractDecorators extracts decorator names from a decorated_definition.
func (p *PythonParser) extractDecorators(node *sitter.Node, content []byte) []string {
	decorators := make([]string, 0)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			grandchild := child.Child(j)
			switch grandchild.Type() {
			case "identifier", "attribute":
				decorators = append(decorators, nodeText(grandchild, content))
			case "call":
				for k := 0; k < int(grandchild.ChildCount()); k++ {
					ggchild := grandchild.Child(k)
					if ggchild.Type() == "identifier" || ggchild.Type() == "attribute" {
						decorators = append(decorators, nodeText(ggchild, content))
						break
					}
				}
			}
		}
	}

	return decorators
}

// extractCallsIn extracts call nodes directly inside a scope.
//
// Description:
//
//	Traverses iteratively from the given node collecting "call" nodes. Nested
//	function, class, and decorated definitions are not entered: calls inside
//	them belong to those declarations. Context is checked every 100 nodes so
//	a canceled review run stops promptly on large bodies.
//
// Outputs:
//   - []CallNode: Calls in traversal order, capped at MaxCallSitesPerBody.
func (p *PythonParser) extractCallsIn(ctx context.Context, scope *sitter.Node, content []byte, filePath string) []CallNode {
	if scope == nil || ctx.Err() != nil {
		return nil
	}

	calls := make([]CallNode, 0, 16)

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := make([]stackEntry, 0, 64)

	// Seed with children so a decl body can be passed directly without the
	// scope node itself being treated as content.
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

		switch node.Type() {
		case "function_definition", "class_definition", "decorated_definition", "lambda":
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

		if node.Type() == "call" {
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

// extractSingleCall extracts one call node with its arguments and usage.
func (p *PythonParser) extractSingleCall(node *sitter.Node, content []byte, filePath string) *CallNode {
	if node == nil || node.Type() != "call" {
		return nil
	}

	funcNode := node.ChildByFieldName("function")
	if funcNode == nil && node.ChildCount() > 0 {
		funcNode = node.Child(0)
	}
	if funcNode == nil {
		return nil
	}

	call := &CallNode{
		CalleeText: truncateText(nodeText(funcNode, content), 200),
		Usage:      classifyPythonUsage(node),
		Location:   nodeLocation(node, filePath),
	}

	switch funcNode.Type() {
	case "identifier":
		call.Target = nodeText(funcNode, content)

	case "attribute":
		objectNode := funcNode.ChildByFieldName("object")
		attrNode := funcNode.ChildByFieldName("attribute")
		if attrNode != nil {
			call.Target = nodeText(attrNode, content)
		}
		if objectNode != nil {
			qualifier := nodeText(objectNode, content)
			// super() receivers normalize to "super" so method resolution
			// can treat them uniformly.
			if objectNode.Type() == "call" && (qualifier == "super()" || qualifier == "super") {
				qualifier = "super"
			}
			call.Qualifier = truncateText(qualifier, 100)
			call.IsMethod = true
		}

	default:
		// Subscript calls, chained call results, etc. Keep the text so the
		// site is visible, but with no resolvable short name.
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

// extractCallArgs reads the argument list of a call.
func (p *PythonParser) extractCallArgs(argsNode *sitter.Node, content []byte) []Arg {
	args := make([]Arg, 0, argsNode.NamedChildCount())
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "(", ")", ",", "comment":
			continue
		case "keyword_argument":
			var keyword, value string
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				keyword = nodeText(nameNode, content)
			}
			if valueNode := child.ChildByFieldName("value"); valueNode != nil {
				value = nodeText(valueNode, content)
			}
			args = append(args, Arg{Text: truncateText(value, 200), Keyword: keyword})
		case "list_splat", "dictionary_splat":
			args = append(args, Arg{Text: truncateText(nodeText(child, content), 200), Spread: true})
		default:
			args = append(args, Arg{Text: truncateText(nodeText(child, content), 200)})
		}
	}
	return args
}

// classifyPythonUsage walks ancestors of a call node to determine how the
// call's result is consumed.
func classifyPythonUsage(node *sitter.Node) ResultUsage {
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
		case "assignment", "augmented_assignment", "named_expression":
			return ResultUsageAssigned
		case "argument_list", "keyword_argument":
			return ResultUsageArgument
		case "return_statement":
			return ResultUsageReturned
		case "await":
			awaited = true
			cur = parent
		case "parenthesized_expression":
			cur = parent
		case "attribute", "call", "subscript":
			return ResultUsageChained
		case "comparison_operator", "boolean_operator", "not_operator",
			"if_statement", "while_statement", "conditional_expression",
			"for_statement", "assert_statement":
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

// isExported determines if a Python name is exported.
//
// Python visibility rules:
//   - Names starting with _ (single underscore) are conventionally private
//   - Names starting with __ but not ending with __ are name-mangled (private)
//   - Dunder names (__init__, __str__, etc.) are special/public
//   - All other names are public
func (p *PythonParser) isExported(name string) bool {
	if name == "" {
		return false
	}

	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}

	if strings.HasPrefix(name, "_") {
		return false
	}

	return true
}

// Compile-time interface compliance check.
var _ Parser = (*PythonParser)(nil)
