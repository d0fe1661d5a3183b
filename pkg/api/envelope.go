package api

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/modoterra/provdash/pkg/core"
)

// Backends have answered listings as a bare array, {data: [...]},
// {rows: [...]} or {items: [...]}. Everything is normalized here so the
// rest of the console only sees core.InterfacePage.
var listKeys = []string{"items", "data", "rows"}

var totalKeys = []string{"total_count", "total", "page_info.total"}

var (
	errInvalidJSON     = errors.New("invalid JSON")
	errUnknownEnvelope = errors.New("unrecognized response envelope")
	errNotObject       = errors.New("list element is not an object")
	errMissingID       = errors.New("record has no id")
)

// DecodeInterfacePage parses a listing body into the canonical envelope.
func DecodeInterfacePage(body []byte, cursor core.PageCursor) (core.InterfacePage, error) {
	if !gjson.ValidBytes(body) {
		return core.InterfacePage{}, &DecodeError{What: "interfaces", Err: errInvalidJSON}
	}
	root := gjson.ParseBytes(body)
	list, ok := listOf(root)
	if !ok {
		return core.InterfacePage{}, &DecodeError{What: "interfaces", Err: errUnknownEnvelope}
	}

	page := core.InterfacePage{
		Items:    make([]core.Interface, 0, len(list)),
		Page:     cursor.Page,
		PageSize: cursor.Size,
	}
	for _, r := range list {
		rec, err := decodeRecord(r)
		if err != nil {
			return core.InterfacePage{}, &DecodeError{What: "interfaces", Err: err}
		}
		page.Items = append(page.Items, rec)
	}

	if root.IsObject() {
		for _, k := range totalKeys {
			if t := root.Get(k); t.Exists() && t.Type == gjson.Number {
				page.Total = t.Int()
				page.HasTotal = true
				break
			}
		}
	}
	return page, nil
}

// DecodeInterface parses a single-record body. A JSON null means not found.
func DecodeInterface(body []byte) (*core.Interface, error) {
	if !gjson.ValidBytes(body) {
		return nil, &DecodeError{What: "interface", Err: errInvalidJSON}
	}
	root := gjson.ParseBytes(body)
	if root.Type == gjson.Null {
		return nil, ErrNotFound
	}
	rec, err := decodeRecord(root)
	if err != nil {
		return nil, &DecodeError{What: "interface", Err: err}
	}
	return &rec, nil
}

// DecodeStats parses the stats body, accepting the same envelopes as listings.
func DecodeStats(body []byte) ([]core.StatBucket, error) {
	if !gjson.ValidBytes(body) {
		return nil, &DecodeError{What: "stats", Err: errInvalidJSON}
	}
	list, ok := listOf(gjson.ParseBytes(body))
	if !ok {
		return nil, &DecodeError{What: "stats", Err: errUnknownEnvelope}
	}
	out := make([]core.StatBucket, 0, len(list))
	for _, r := range list {
		if !r.IsObject() {
			return nil, &DecodeError{What: "stats", Err: errNotObject}
		}
		out = append(out, core.StatBucket{
			GroupKey: r.Get("group_key").String(),
			Total:    r.Get("total").Int(),
		})
	}
	return out, nil
}

func listOf(root gjson.Result) ([]gjson.Result, bool) {
	if root.IsArray() {
		return root.Array(), true
	}
	if root.IsObject() {
		for _, k := range listKeys {
			if r := root.Get(k); r.IsArray() {
				return r.Array(), true
			}
		}
	}
	return nil, false
}

func decodeRecord(r gjson.Result) (core.Interface, error) {
	if !r.IsObject() {
		return core.Interface{}, errNotObject
	}
	id := first(r, "id", "pri_id")
	if !id.Exists() || id.Type == gjson.Null {
		return core.Interface{}, errMissingID
	}
	return core.Interface{
		ID:             id.Int(),
		CellularNumber: first(r, "cellular_number", "pri_cellular_number", "msisdn").String(),
		Status:         first(r, "status", "pri_status").String(),
		ActionDate:     first(r, "action_date", "pri_action_date").String(),
		ErrorCode:      first(r, "error_code", "pri_error_code").String(),
		MessageError:   first(r, "message_error", "pri_message_error").String(),
		NEService:      first(r, "ne_service", "pri_ne_service").String(),
	}, nil
}

// first returns the first key present and non-null in r. The bare names win
// over the backend's pri_ prefixed column names.
func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
