package wsbrowser

import "fmt"

// Message types on the bridge socket.
const (
	// host -> page
	MsgEval   = "eval"
	MsgBind   = "bind"
	MsgReload = "reload"

	// page -> host
	MsgLoaded = "loaded"
	MsgCall   = "call"
)

type Message struct {
	Type   string `json:"type"`
	Script string `json:"script,omitempty"`
	Name   string `json:"name,omitempty"`
	Args   []any  `json:"args,omitempty"`
}

func (m Message) String() string {
	switch m.Type {
	case MsgEval:
		return fmt.Sprintf("eval: %s", m.Script)
	case MsgBind:
		return "bind: " + m.Name
	case MsgCall:
		return fmt.Sprintf("call: %s%v", m.Name, m.Args)
	default:
		return m.Type
	}
}
