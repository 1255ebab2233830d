package integration

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"

	"flowjs-works/aslcompiler/internal/graph"
)

// transformHook lowers transform.run(config) to a Pass state whose
// Result is the already-computed json2csv/xml2json/json2xml output,
// adapting the teacher's own TransformActivity conversion helpers to
// run over the call's literal config data at compile time instead of
// live runtime data — there is no ASL intrinsic for any of these
// formats, so transform only ever applies to a fully constant `data`
// field (spec.md §4.10).
type transformHook struct{}

func newTransformHook() *transformHook { return &transformHook{} }

func (h *transformHook) Name() string { return "transform" }

func (h *transformHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	transformType, err := constString(call, m, "transform_type")
	if err != nil {
		return nil, err
	}
	data, ok := m["data"]
	if !ok {
		return nil, configErr(call, "transform.%s requires a 'data' field", call.Method)
	}
	if _, dynamic := data.(graph.PathMarker); dynamic {
		return nil, configErr(call, "transform.%s: 'data' must be a compile-time constant — there is no ASL intrinsic for %s", call.Method, transformType)
	}

	var result string
	switch transformType {
	case "json2csv":
		result, err = transformJSON2CSV(data)
	case "xml2json":
		result, err = transformXML2JSON(data)
	case "json2xml":
		result, err = transformJSON2XML(data)
	default:
		return nil, configErr(call, "transform.%s: unknown transform_type %q", call.Method, transformType)
	}
	if err != nil {
		return nil, configErr(call, "transform.%s: %v", call.Method, err)
	}

	return &graph.NodeState{Type: graph.TypePass, Result: result}, nil
}

func transformJSON2CSV(data interface{}) (string, error) {
	rows, ok := data.([]interface{})
	if !ok {
		return "", fmt.Errorf("data must be an array of objects")
	}
	if len(rows) == 0 {
		return "", nil
	}
	firstRow, ok := rows[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("each row must be an object")
	}
	headers := make([]string, 0, len(firstRow))
	for k := range firstRow {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, rowRaw := range rows {
		row, ok := rowRaw.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("each row must be an object")
		}
		record := make([]string, len(headers))
		for i, hdr := range headers {
			if v := row[hdr]; v != nil {
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func transformXML2JSON(data interface{}) (string, error) {
	s, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("data must be a string of XML")
	}
	var generic map[string]interface{}
	if err := xml.Unmarshal([]byte(s), (*xmlGeneric)(&generic)); err != nil {
		return "", err
	}
	b, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// xmlGeneric is a minimal decode target letting xml.Unmarshal validate
// well-formedness at compile time without a full schema.
type xmlGeneric map[string]interface{}

func (x *xmlGeneric) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		XMLName xml.Name
		Content string `xml:",innerxml"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	*x = xmlGeneric{raw.XMLName.Local: raw.Content}
	return nil
}

func transformJSON2XML(data interface{}) (string, error) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("data must be an object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<root>")
	for _, k := range keys {
		fmt.Fprintf(&buf, "<%s>%v</%s>", k, m[k], k)
	}
	buf.WriteString("</root>")
	return buf.String(), nil
}
