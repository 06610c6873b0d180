package remediation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// segment is one piece of a compiled template string: either literal text
// or a dotted/indexed path to resolve against the substitution roots
// ({evidence, ctx, item}) at emission time. There is no snapshot root.
type segment struct {
	literal string
	path    []pathStep
	isPath  bool
}

// pathStep is one "." or "[n]" hop in a path like evidence.missing[0].
type pathStep struct {
	key   string
	index int // -1 when this step has no index
}

// compiledTemplate is an ActionTemplate whose {{...}} tokens have been
// split into segments once, at config-load time, per spec.md §9's Design
// Note: "resolve tokens once ... rather than re-parsing per event".
type compiledTemplate struct {
	model.ActionTemplate
	payload compiledNode
}

// compiledNode mirrors the shape of a payloadTemplate JSON value, with
// string leaves pre-split into segments.
type compiledNode struct {
	segments []segment        // set when this node is a string leaf
	array    []compiledNode   // set when this node is a JSON array
	object   map[string]compiledNode // set when this node is a JSON object
	literal  interface{}      // set for non-string, non-container leaves
	kind     nodeKind
}

type nodeKind int

const (
	nodeString nodeKind = iota
	nodeArray
	nodeObject
	nodeLiteral
)

// compile turns a raw RemediationLogic into compiled templates keyed by
// corruptionType, preserving emission order within each type.
func compile(logic model.RemediationLogic) map[string][]compiledTemplate {
	out := make(map[string][]compiledTemplate, len(logic))
	for corruptionType, templates := range logic {
		compiledList := make([]compiledTemplate, 0, len(templates))
		for _, tmpl := range templates {
			compiledList = append(compiledList, compiledTemplate{
				ActionTemplate: tmpl,
				payload:        compileNode(tmpl.PayloadTemplate),
			})
		}
		out[corruptionType] = compiledList
	}
	return out
}

func compileNode(v interface{}) compiledNode {
	switch val := v.(type) {
	case map[string]interface{}:
		obj := make(map[string]compiledNode, len(val))
		for k, child := range val {
			obj[k] = compileNode(child)
		}
		return compiledNode{kind: nodeObject, object: obj}
	case []interface{}:
		arr := make([]compiledNode, 0, len(val))
		for _, child := range val {
			arr = append(arr, compileNode(child))
		}
		return compiledNode{kind: nodeArray, array: arr}
	case string:
		return compiledNode{kind: nodeString, segments: compileString(val)}
	default:
		return compiledNode{kind: nodeLiteral, literal: val}
	}
}

// compileString splits a template string on {{...}} tokens into literal
// and path segments.
func compileString(s string) []segment {
	var segments []segment
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			if rest != "" {
				segments = append(segments, segment{literal: rest})
			}
			break
		}
		if start > 0 {
			segments = append(segments, segment{literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			// Unterminated token: treat the remainder as literal text.
			segments = append(segments, segment{literal: rest[start:]})
			break
		}
		token := strings.TrimSpace(rest[start+2 : start+end])
		segments = append(segments, segment{isPath: true, path: parsePath(token)})
		rest = rest[start+end+2:]
	}
	return segments
}

// parsePath splits "evidence.missing[0]" into [{key:"evidence"},
// {key:"missing", index:0}].
func parsePath(token string) []pathStep {
	var steps []pathStep
	for _, part := range strings.Split(token, ".") {
		key := part
		index := -1
		if bracket := strings.Index(part, "["); bracket != -1 && strings.HasSuffix(part, "]") {
			idxStr := part[bracket+1 : len(part)-1]
			if n, err := strconv.Atoi(idxStr); err == nil {
				index = n
			}
			key = part[:bracket]
		}
		steps = append(steps, pathStep{key: key, index: index})
	}
	return steps
}

// resolveErr is returned by resolve when a token's path has no value.
type resolveErr struct {
	token string
}

func (e *resolveErr) Error() string {
	return fmt.Sprintf("undefined token path %q", e.token)
}

// resolveValue renders a compiledNode into a plain Go value (ready for
// json.Marshal) against the substitution roots. A string node composed of
// exactly one path segment with no surrounding literal text resolves to
// the referenced value's native type (so {{ctx.storeCount}} yields a
// number, not "3"); mixed literal+path strings always resolve to text.
func resolveValue(node compiledNode, roots map[string]interface{}) (interface{}, error) {
	switch node.kind {
	case nodeLiteral:
		return node.literal, nil
	case nodeArray:
		out := make([]interface{}, len(node.array))
		for i, child := range node.array {
			v, err := resolveValue(child, roots)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case nodeObject:
		out := make(map[string]interface{}, len(node.object))
		for k, child := range node.object {
			v, err := resolveValue(child, roots)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case nodeString:
		return resolveString(node.segments, roots)
	default:
		return nil, nil
	}
}

func resolveString(segments []segment, roots map[string]interface{}) (interface{}, error) {
	if len(segments) == 1 && segments[0].isPath {
		return resolvePath(roots, segments[0].path)
	}

	var b strings.Builder
	for _, seg := range segments {
		if !seg.isPath {
			b.WriteString(seg.literal)
			continue
		}
		v, err := resolvePath(roots, seg.path)
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprintf("%v", v))
	}
	return b.String(), nil
}

func resolvePath(roots map[string]interface{}, path []pathStep) (interface{}, error) {
	var cur interface{} = roots
	for _, step := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, &resolveErr{token: pathString(path)}
		}
		v, ok := m[step.key]
		if !ok {
			return nil, &resolveErr{token: pathString(path)}
		}
		if step.index >= 0 {
			switch list := v.(type) {
			case []interface{}:
				if step.index >= len(list) {
					return nil, &resolveErr{token: pathString(path)}
				}
				v = list[step.index]
			case []string:
				if step.index >= len(list) {
					return nil, &resolveErr{token: pathString(path)}
				}
				v = list[step.index]
			default:
				return nil, &resolveErr{token: pathString(path)}
			}
		}
		cur = v
	}
	return cur, nil
}

func pathString(path []pathStep) string {
	parts := make([]string, len(path))
	for i, step := range path {
		if step.index >= 0 {
			parts[i] = fmt.Sprintf("%s[%d]", step.key, step.index)
		} else {
			parts[i] = step.key
		}
	}
	return strings.Join(parts, ".")
}
