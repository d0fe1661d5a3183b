package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// FormField is a named text input.
type FormField struct {
	Name  string
	Label string
	Input textinput.Model
}

// FormModel is a small stack of text inputs with tab focus cycling. It backs
// the login screen and the interface filter bar.
type FormModel struct {
	title     string
	fields    []FormField
	activeIdx int
}

// FormResult tells the caller what a key did to the form.
type FormResult int

const (
	FormEditing FormResult = iota
	FormSubmitted
	FormCancelled
)

func newLoginForm() *FormModel {
	user := newInput("username", "", false)
	pass := newInput("password", "", true)
	f := &FormModel{
		title: "Sign in",
		fields: []FormField{
			{Name: "username", Label: "username", Input: user},
			{Name: "password", Label: "password", Input: pass},
		},
	}
	f.fields[0].Input.Focus()
	return f
}

func newFilterForm(names []string, current map[string]string) *FormModel {
	f := &FormModel{title: "Filter interfaces"}
	for _, name := range names {
		f.fields = append(f.fields, FormField{
			Name:  name,
			Label: strings.ReplaceAll(name, "_", " "),
			Input: newInput(name, current[name], false),
		})
	}
	if len(f.fields) > 0 {
		f.fields[0].Input.Focus()
	}
	return f
}

func newInput(placeholder, value string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.SetValue(value)
	ti.CharLimit = 128
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

// HandleKey feeds a key to the form.
func (f *FormModel) HandleKey(msg tea.KeyMsg) (FormResult, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return FormCancelled, nil
	case "enter":
		return FormSubmitted, nil
	case "tab", "down":
		f.focus((f.activeIdx + 1) % len(f.fields))
		return FormEditing, textinput.Blink
	case "shift+tab", "up":
		f.focus((f.activeIdx - 1 + len(f.fields)) % len(f.fields))
		return FormEditing, textinput.Blink
	default:
		var cmd tea.Cmd
		f.fields[f.activeIdx].Input, cmd = f.fields[f.activeIdx].Input.Update(msg)
		return FormEditing, cmd
	}
}

func (f *FormModel) focus(idx int) {
	f.fields[f.activeIdx].Input.Blur()
	f.activeIdx = idx
	f.fields[f.activeIdx].Input.Focus()
}

// Values returns the raw input keyed by field name.
func (f *FormModel) Values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, fl := range f.fields {
		out[fl.Name] = fl.Input.Value()
	}
	return out
}

// Set overwrites a field's value; unknown names are ignored.
func (f *FormModel) Set(name, value string) {
	for i := range f.fields {
		if f.fields[i].Name == name {
			f.fields[i].Input.SetValue(value)
		}
	}
}

// View renders the form.
func (f *FormModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" "+f.title+" ") + "\n\n")
	labelW := 0
	for _, fl := range f.fields {
		labelW = max(labelW, len(fl.Label))
	}
	for i, fl := range f.fields {
		prefix := "  "
		if i == f.activeIdx {
			prefix = "▸ "
		}
		label := fl.Label + ":" + strings.Repeat(" ", labelW-len(fl.Label)+1)
		b.WriteString(prefix + dimStyle.Render(label) + fl.Input.View() + "\n")
	}
	return b.String()
}
