package queryapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// EntityDef is one entity declared in the datamodel string (§6, "datamodel
// string"): a short-name plus its scalar field names. The full value model
// (spec.md §9: Boolean|Integer|Float|String|Base64|Json|Array(entity)|
// Entity(entity)) is a front-end concern; this facade only needs to know
// which field names exist for an entity to project json_data in and out.
type EntityDef struct {
	Name   string
	Fields []string
}

// DataModel is the parsed form of the datamodel string an embedder passes
// to New/UpdateDataModel.
type DataModel struct {
	Entities map[string]EntityDef
}

var (
	entityDeclRe = regexp.MustCompile(`(?s)(\w+)\s*\{([^}]*)\}`)
	fieldNameRe  = regexp.MustCompile(`\w+`)

	// ErrUnknownEntity is returned when a mutate/query/delete call names an
	// entity the current data model does not declare.
	ErrUnknownEntity = errors.New("queryapi: unknown entity")
	// ErrParsing covers every malformed-input case: an unparsable
	// datamodel, mutation, or query string.
	ErrParsing = errors.New("queryapi: parsing error")
)

// ParseDataModel parses a datamodel string of the form
// `EntityName{ field:Type, field2:Type }` (one or more entity blocks), for
// example `Greetings{message:String}`.
func ParseDataModel(src string) (*DataModel, error) {
	matches := entityDeclRe.FindAllStringSubmatch(src, -1)
	if matches == nil {
		return nil, fmt.Errorf("%w: no entity declarations found", ErrParsing)
	}
	dm := &DataModel{Entities: make(map[string]EntityDef)}
	for _, m := range matches {
		name := m[1]
		var fields []string
		for _, part := range strings.Split(m[2], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fieldName := fieldNameRe.FindString(part)
			if fieldName == "" {
				continue
			}
			fields = append(fields, fieldName)
		}
		dm.Entities[name] = EntityDef{Name: name, Fields: fields}
	}
	return dm, nil
}

// Encode renders dm back to a datamodel string (entity blocks follow map
// iteration order, so their order can differ between calls), used by
// Handle.DataModel (§6 `data_model() -> JSON`, rendered here as the source
// string wrapped in a JSON object for a stable API shape).
func (dm *DataModel) Encode() string {
	var b strings.Builder
	for name, def := range dm.Entities {
		fmt.Fprintf(&b, "%s{%s}", name, strings.Join(def.Fields, ","))
	}
	return b.String()
}

// mutationStatement is one parsed `EntityName{ field:value, ... }` mutation,
// the minimal shape spec.md §8's scenarios use (e.g.
// `Greetings{ message:"Hello World" }`).
type mutationStatement struct {
	Entity string
	Fields map[string]any
}

var mutationFieldRe = regexp.MustCompile(`(\w+)\s*:\s*("((?:[^"\\]|\\.)*)"|\$?[-\w.]+)`)

// parseMutation parses a single-entity mutation statement, substituting
// $-prefixed parameter references from params.
func parseMutation(query string, params map[string]any) (*mutationStatement, error) {
	m := entityDeclRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("%w: %q is not a valid mutation", ErrParsing, query)
	}
	stmt := &mutationStatement{Entity: m[1], Fields: make(map[string]any)}
	for _, fm := range mutationFieldRe.FindAllStringSubmatch(m[2], -1) {
		name := fm[1]
		raw := fm[2]
		if strings.HasPrefix(raw, `"`) {
			stmt.Fields[name] = strings.ReplaceAll(fm[3], `\"`, `"`)
			continue
		}
		if strings.HasPrefix(raw, "$") {
			val, ok := params[strings.TrimPrefix(raw, "$")]
			if !ok {
				return nil, fmt.Errorf("%w: missing parameter %s", ErrParsing, raw)
			}
			stmt.Fields[name] = val
			continue
		}
		var num json.Number = json.Number(raw)
		if f, err := num.Float64(); err == nil {
			stmt.Fields[name] = f
			continue
		}
		stmt.Fields[name] = raw
	}
	return stmt, nil
}

// queryStatement is one parsed `EntityName(filter...){field,...}` query,
// e.g. `Greetings(id=$id){message}` or `Person{name}` for an unfiltered
// scan of every row of that entity in the caller's rooms.
type queryStatement struct {
	Entity  string
	Filters map[string]string
	Fields  []string
}

var queryRe = regexp.MustCompile(`(?s)(\w+)\s*(\(([^)]*)\))?\s*\{([^}]*)\}`)

func parseQuery(q string) (*queryStatement, error) {
	m := queryRe.FindStringSubmatch(q)
	if m == nil {
		return nil, fmt.Errorf("%w: %q is not a valid query", ErrParsing, q)
	}
	stmt := &queryStatement{Entity: m[1], Filters: make(map[string]string)}
	if m[3] != "" {
		for _, pair := range strings.Split(m[3], ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 {
				continue
			}
			stmt.Filters[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	for _, f := range strings.Split(m[4], ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			stmt.Fields = append(stmt.Fields, f)
		}
	}
	return stmt, nil
}

func resolveFilterValue(raw string, params map[string]any) (any, bool) {
	if strings.HasPrefix(raw, "$") {
		v, ok := params[strings.TrimPrefix(raw, "$")]
		return v, ok
	}
	return strings.Trim(raw, `"`), true
}
