package apiapp

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/ledger"
)

const (
	maxBodyBytes   = 1 << 20
	maxMemoryBytes = 1 << 20
)

// params is a decoded request: query string, form fields (with bracketed
// names expanded into nested values) or a JSON document.
type params map[string]any

// decodeRequest merges the query string with the body. Body values win.
// A body that looks like JSON is read as JSON whatever its content type so
// clients can post text/plain and skip the CORS preflight.
func decodeRequest(w http.ResponseWriter, r *http.Request) (params, error) {
	p := expandForm(r.URL.Query())
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		return p, nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Validation("request body too large or unreadable")
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return p, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var body params
	switch {
	case mediaType == "application/json" || trimmed[0] == '{':
		body, err = decodeJSON(trimmed)
	case mediaType == "multipart/form-data":
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			return nil, apperr.Validation("invalid form body")
		}
		body, err = decodeForm(r.MultipartForm.Value)
	default:
		values, parseErr := url.ParseQuery(string(raw))
		if parseErr != nil {
			return nil, apperr.Validation("invalid form body")
		}
		body, err = decodeForm(values)
	}
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		p[k] = v
	}
	return p, nil
}

func decodeJSON(raw []byte) (params, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body params
	if err := dec.Decode(&body); err != nil {
		return nil, apperr.Validation("invalid JSON body")
	}
	if body == nil {
		body = params{}
	}
	return body, nil
}

// decodeForm expands bracketed field names. A "payload" field holding JSON
// replaces the form, keeping any other fields it does not set.
func decodeForm(values url.Values) (params, error) {
	payload := strings.TrimSpace(values.Get("payload"))
	delete(values, "payload")
	form := expandForm(values)
	if payload == "" {
		return form, nil
	}
	body, err := decodeJSON([]byte(payload))
	if err != nil {
		return nil, apperr.Validation("invalid payload JSON")
	}
	for k, v := range form {
		if _, ok := body[k]; !ok {
			body[k] = v
		}
	}
	return body, nil
}

// expandForm turns work_log_rows[0][load_time]=07:00 and truck_defects[]=Horn
// into nested maps and slices.
func expandForm(values url.Values) params {
	root := map[string]any{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		path := splitKey(key)
		if len(path) == 0 {
			continue
		}
		node := root
		for _, seg := range path[:len(path)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[seg] = child
			}
			node = child
		}
		last := path[len(path)-1]
		switch {
		case last == "":
			// name[] collects every value in order.
			list := make([]any, 0, len(vals))
			for _, v := range vals {
				list = append(list, v)
			}
			node[""] = list
		case len(vals) > 1:
			list := make([]any, 0, len(vals))
			for _, v := range vals {
				list = append(list, v)
			}
			node[last] = list
		default:
			node[last] = vals[0]
		}
	}
	for k, v := range root {
		root[k] = normalize(v)
	}
	return params(root)
}

// splitKey splits a[b][c] into [a b c]. A key without brackets is one segment.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		if key == "" {
			return nil
		}
		return []string{key}
	}
	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

// normalize folds maps keyed by indexes (or by the empty name[] segment) into
// slices.
func normalize(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = normalize(child)
	}
	if list, ok := m[""]; ok && len(m) == 1 {
		return list
	}
	if len(m) == 0 {
		return m
	}
	indexes := make([]int, 0, len(m))
	for k := range m {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return m
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	out := make([]any, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, m[strconv.Itoa(idx)])
	}
	return out
}

func (p params) str(key string) string {
	return strings.TrimSpace(stringify(p[key]))
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		return stringify(t[len(t)-1])
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// list reads a list field sent as an array, a JSON string or a single value.
func (p params) list(key string) []string {
	var items []any
	switch t := p[key].(type) {
	case nil:
		return nil
	case []any:
		items = t
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				items = decoded
				break
			}
		}
		if s == "" {
			return nil
		}
		items = []any{s}
	default:
		items = []any{t}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.TrimSpace(stringify(item)))
	}
	return out
}

func (p params) workLog(key string) []ledger.WorkLogRow {
	var items []any
	switch t := p[key].(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil
		}
	default:
		return nil
	}

	rows := make([]ledger.WorkLogRow, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := params(m)
		rows = append(rows, ledger.WorkLogRow{
			LoadTime:       row.str("load_time"),
			DelTime:        row.str("del_time"),
			TruckEquip:     row.str("truck_equip"),
			NumLoads:       row.str("num_loads"),
			UnitMeas:       row.str("unit_meas"),
			MaterialType:   row.str("material_type"),
			SourceSupplier: row.str("source_supplier"),
			JobDesc:        row.str("job_desc"),
			JobNum:         row.str("job_num"),
			JobHours:       row.str("job_hours"),
		})
	}
	return rows
}

// fields maps the request onto the ledger's named fields. Absent fields are
// empty.
func (p params) fields() ledger.Fields {
	return ledger.Fields{
		EmployeeName:     p.str("employee_name"),
		Date:             p.str("date"),
		DayOfWeek:        p.str("day_of_week"),
		TimeIn:           p.str("time_in"),
		TimeOut:          p.str("time_out"),
		EquipmentNum:     p.str("equipment_num"),
		BegMiles:         p.str("beg_miles"),
		EndMiles:         p.str("end_miles"),
		BegRegionalMiles: p.str("beg_regional_miles"),
		EndRegionalMiles: p.str("end_regional_miles"),
		TotalMiles:       p.str("total_miles"),
		FuelGallons:      p.str("fuel_gallons"),
		TruckDefects:     p.list("truck_defects"),
		TrailerDefects:   p.list("trailer_defects"),
		DefectRemarks:    p.str("defect_remarks"),
		Injured:          p.str("injured"),
		InjuryDetails:    p.str("injury_details"),
		Signature:        p.str("signature"),
		WorkLogRows:      p.workLog("work_log_rows"),
		ManagerNotes:     p.str("manager_notes"),
		InvoiceNum:       p.str("invoice_num"),
	}
}

// token reads the session token from the body, the query string or a bearer
// Authorization header, in that order.
func (p params) token(r *http.Request) string {
	if t := p.str("token"); t != "" {
		return t
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
