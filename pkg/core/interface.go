package core

import "strconv"

// Interface is one provisioning entry for a subscriber line.
// Records are read-only projections of backend data; identity is ID.
type Interface struct {
	ID             int64  `json:"id"`
	CellularNumber string `json:"cellular_number"`
	Status         string `json:"status"`
	ActionDate     string `json:"action_date,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	MessageError   string `json:"message_error,omitempty"`
	NEService      string `json:"ne_service,omitempty"`
}

// Field names understood by Interface.Field.
const (
	FieldID             = "id"
	FieldCellularNumber = "cellular_number"
	FieldStatus         = "status"
	FieldActionDate     = "action_date"
	FieldErrorCode      = "error_code"
	FieldMessageError   = "message_error"
	FieldNEService      = "ne_service"
)

// Field returns the display value of the named field, or "" if unknown.
func (i Interface) Field(name string) string {
	switch name {
	case FieldID:
		return strconv.FormatInt(i.ID, 10)
	case FieldCellularNumber:
		return i.CellularNumber
	case FieldStatus:
		return i.Status
	case FieldActionDate:
		return i.ActionDate
	case FieldErrorCode:
		return i.ErrorCode
	case FieldMessageError:
		return i.MessageError
	case FieldNEService:
		return i.NEService
	default:
		return ""
	}
}

// InterfacePage is the canonical envelope for an interface listing.
type InterfacePage struct {
	Items    []Interface `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total,omitempty"`
	HasTotal bool        `json:"-"`
}

// Full reports whether the page returned as many rows as were requested.
// A full page is the only evidence that a next page may exist.
func (p InterfacePage) Full() bool {
	return p.PageSize > 0 && len(p.Items) >= p.PageSize
}

// StatBucket is one server-side aggregate row.
type StatBucket struct {
	GroupKey string `json:"group_key"`
	Total    int64  `json:"total"`
}
