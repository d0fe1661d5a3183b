package table

import "github.com/modoterra/provdash/pkg/core"

// InterfaceColumns is the interface listing layout shared by the TUI and CLI.
var InterfaceColumns = []Column{
	{Header: "ID", Field: core.FieldID},
	{Header: "MSISDN", Field: core.FieldCellularNumber},
	{Header: "STATUS", Field: core.FieldStatus},
	{Header: "ERROR CODE", Field: core.FieldErrorCode},
	{Header: "NE SERVICE", Field: core.FieldNEService},
	{Header: "ACTION DATE", Field: core.FieldActionDate},
}

// InterfaceDetail lists every field of a single record, for detail views.
var InterfaceDetail = []Column{
	{Header: "ID", Field: core.FieldID},
	{Header: "MSISDN", Field: core.FieldCellularNumber},
	{Header: "Status", Field: core.FieldStatus},
	{Header: "Action date", Field: core.FieldActionDate},
	{Header: "Error code", Field: core.FieldErrorCode},
	{Header: "Error message", Field: core.FieldMessageError},
	{Header: "NE service", Field: core.FieldNEService},
}
