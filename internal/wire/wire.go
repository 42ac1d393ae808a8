// Package wire implements component K: translation between the wire
// protocols client SDKs actually speak and the internal engine calls that
// serve them. Three dialects are supported per service, detected from the
// incoming request: AWS JSON target-header (X-Amz-Target: Service.Op, JSON
// body/response), AWS query/form (Action=Op parameter, XML response), and
// REST+XML (path-addressed resources, used by the object service).
package wire

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Dialect identifies which wire protocol a request used.
type Dialect int

const (
	DialectJSON Dialect = iota
	DialectQuery
	DialectREST
)

// DetectDialect inspects a request and reports which dialect it used.
// X-Amz-Target identifies the JSON dialect; a form-encoded Action parameter
// identifies the query dialect; anything else is treated as REST.
func DetectDialect(r *http.Request) Dialect {
	if r.Header.Get("X-Amz-Target") != "" {
		return DialectJSON
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return DialectQuery
	}
	return DialectREST
}

// OperationName extracts the target operation name for the JSON and query
// dialects. "Service.Operation" headers are split on the dot; query-dialect
// requests carry the operation in the Action form field.
func OperationName(r *http.Request, dialect Dialect) string {
	switch dialect {
	case DialectJSON:
		target := r.Header.Get("X-Amz-Target")
		if idx := strings.LastIndex(target, "."); idx >= 0 {
			return target[idx+1:]
		}
		return target
	case DialectQuery:
		return r.FormValue("Action")
	default:
		return ""
	}
}

// Handler is one operation's implementation, decoupled from the wire
// dialect: it receives already-decoded input and returns a value to encode,
// or an *ldkerr.Error to translate into the dialect's error envelope.
type Handler func(r *http.Request) (interface{}, error)

// OperationTable maps operation names to handlers for one service.
type OperationTable map[string]Handler

// Dispatch resolves the operation for dialect and invokes its handler,
// writing a success/error envelope in that dialect's shape. REST+XML
// services use their own routing (see the ObjectService router in
// internal/services/object_service.go) since their
// operation identity is the HTTP method plus path shape, not a named
// Action/Target.
func Dispatch(w http.ResponseWriter, r *http.Request, table OperationTable) {
	dialect := DetectDialect(r)
	op := OperationName(r, dialect)
	handler, ok := table[op]
	if !ok {
		WriteError(w, dialect, ldkerr.Client("UnknownOperationException", "unknown operation: "+op))
		return
	}
	result, err := handler(r)
	if err != nil {
		WriteError(w, dialect, err)
		return
	}
	WriteResult(w, dialect, op, result)
}

// WriteResult renders a successful operation result in the requested
// dialect. The JSON dialect writes the plain envelope AWS JSON protocols
// use; the query dialect wraps the same data in the conventional
// "<Op>Response><OpResult>...</OpResult></OpResponse>" XML envelope.
func WriteResult(w http.ResponseWriter, dialect Dialect, op string, result interface{}) {
	if dialect == DialectQuery {
		writeXMLResult(w, op, result)
		return
	}
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// ErrorEnvelope is the JSON-dialect error body shape.
type ErrorEnvelope struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// WriteError renders err in the requested dialect's error envelope and sets
// the matching HTTP status code.
func WriteError(w http.ResponseWriter, dialect Dialect, err error) {
	e, ok := ldkerr.As(err)
	if !ok {
		e = ldkerr.New(ldkerr.KindInternal, "InternalFailure", err.Error())
	}
	if dialect == DialectQuery {
		writeXMLError(w, e)
		return
	}
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(statusForKind(e.Kind))
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Type: e.Code, Message: e.Message})
}

func statusForKind(kind ldkerr.Kind) int {
	switch kind {
	case ldkerr.KindClient:
		return http.StatusBadRequest
	case ldkerr.KindNotFound:
		return http.StatusNotFound
	case ldkerr.KindConflict:
		return http.StatusConflict
	case ldkerr.KindPolicyDenial:
		return http.StatusForbidden
	case ldkerr.KindChaos, ldkerr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeXMLResult renders result as the query dialect's success envelope:
// <OpResponse><OpResult>...fields...</OpResult></OpResponse>, the same
// wrapping shape SQS/SNS/the other query-protocol services use.
func writeXMLResult(w http.ResponseWriter, op string, result interface{}) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<%sResponse>", op)
	writeXMLValue(&b, op+"Result", result)
	fmt.Fprintf(&b, "</%sResponse>", op)
	_, _ = w.Write([]byte(b.String()))
}

// writeXMLError renders the query dialect's <ErrorResponse> envelope.
func writeXMLError(w http.ResponseWriter, e *ldkerr.Error) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(statusForKind(e.Kind))
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<ErrorResponse><Error><Type>Sender</Type><Code>")
	xml.EscapeText(&b, []byte(e.Code))
	b.WriteString("</Code><Message>")
	xml.EscapeText(&b, []byte(e.Message))
	b.WriteString("</Message></Error></ErrorResponse>")
	_, _ = w.Write([]byte(b.String()))
}

// writeXMLValue recursively renders v as XML under element name, the only
// structure query-dialect handlers return: maps, slices of maps, and plain
// scalars built from map[string]interface{} results (the same shape every
// handler in internal/services already returns for the JSON dialect). Map
// keys are sorted so repeated requests render identical bodies.
func writeXMLValue(b *strings.Builder, name string, v interface{}) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		fmt.Fprintf(b, "<%s/>", name)
		return
	}
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
		}
		sort.Strings(names)
		fmt.Fprintf(b, "<%s>", name)
		for _, key := range names {
			writeXMLValue(b, key, rv.MapIndex(reflect.ValueOf(key)).Interface())
		}
		fmt.Fprintf(b, "</%s>", name)
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			fmt.Fprintf(b, "<%s/>", name)
			return
		}
		for i := 0; i < rv.Len(); i++ {
			writeXMLValue(b, "member", rv.Index(i).Interface())
		}
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			fmt.Fprintf(b, "<%s/>", name)
			return
		}
		writeXMLValue(b, name, rv.Elem().Interface())
	default:
		fmt.Fprintf(b, "<%s>", name)
		xml.EscapeText(b, []byte(fmt.Sprint(v)))
		fmt.Fprintf(b, "</%s>", name)
	}
}

// DecodeJSON decodes a JSON-dialect request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return ldkerr.Client("SerializationException", "missing request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ldkerr.Client("SerializationException", "malformed request body: "+err.Error())
	}
	return nil
}

// DecodeForm decodes a query-dialect, form-encoded request into v, a
// pointer to a struct. Each scalar field is read from the form value named
// by its `json` tag (query-dialect parameter names and JSON-dialect field
// names are the same strings in every AWS-style service this emulates, so
// the JSON tags already in every request struct double as form field
// names). Map, slice, and nested-struct fields are query-dialect features
// (e.g. MessageAttribute.N.Name indexed lists) this emulator does not
// model and are left at their zero value.
func DecodeForm(r *http.Request, v interface{}) error {
	if err := r.ParseForm(); err != nil {
		return ldkerr.Client("SerializationException", "malformed form body: "+err.Error())
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ldkerr.Fatal("InternalFailure", "DecodeForm requires a pointer to struct")
	}
	elem := rv.Elem()
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := elem.Field(i)
		if !fv.CanSet() {
			continue
		}
		switch fv.Kind() {
		case reflect.String, reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		default:
			continue
		}
		name := formFieldName(field)
		raw := r.FormValue(name)
		if raw == "" {
			continue
		}
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return ldkerr.Client("SerializationException", "field "+name+": "+err.Error())
			}
			fv.SetBool(b)
		default:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return ldkerr.Client("SerializationException", "field "+name+": "+err.Error())
			}
			fv.SetInt(n)
		}
	}
	return nil
}

func formFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" || tag == "-" {
		return field.Name
	}
	return tag
}

// DecodeRequest decodes r's body according to its own dialect: JSON-target
// requests decode their JSON body, query-dialect requests form-decode, and
// anything else (REST dialect, which has its own decoding) is treated as
// JSON since no service routes REST requests through this helper.
func DecodeRequest(r *http.Request, v interface{}) error {
	if DetectDialect(r) == DialectQuery {
		return DecodeForm(r, v)
	}
	return DecodeJSON(r, v)
}
