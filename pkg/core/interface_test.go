package core

import "testing"

func TestInterfaceField(t *testing.T) {
	rec := Interface{ID: 42, CellularNumber: "5491122334455", Status: "ACTIVE", NEService: "HLR"}
	tests := []struct {
		field string
		want  string
	}{
		{FieldID, "42"},
		{FieldCellularNumber, "5491122334455"},
		{FieldStatus, "ACTIVE"},
		{FieldNEService, "HLR"},
		{FieldErrorCode, ""},
		{"nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := rec.Field(tt.field); got != tt.want {
				t.Errorf("Field(%q): got %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestInterfacePageFull(t *testing.T) {
	page := InterfacePage{Items: make([]Interface, 10), PageSize: 10}
	if !page.Full() {
		t.Error("10 of 10 rows should be full")
	}
	page.Items = page.Items[:9]
	if page.Full() {
		t.Error("9 of 10 rows should not be full")
	}
	if (InterfacePage{}).Full() {
		t.Error("zero page size is never full")
	}
}
