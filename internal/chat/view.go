package chat

// View is the surface a widget drives: the input control, the message list
// and the collapsible content panel.
type View interface {
	InputText() string
	ClearInput()
	AppendLine(line string)
	ScrollToBottom()
	SetCollapsed(collapsed bool)
}

// History stores rendered lines per room. A nil History disables persistence.
type History interface {
	Append(room, text string) error
	Recent(room string, limit int) ([]string, error)
}
