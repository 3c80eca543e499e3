package request

import (
	"github.com/rs/zerolog"
)

// IconType selects the icon of an alert.
type IconType string

const (
	IconError   IconType = "error"
	IconWarning IconType = "warning"
	IconInfo    IconType = "info"
)

// Alerter shows a message to the user.
type Alerter interface {
	Alert(message string, icon IconType)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(message string, icon IconType)

// Alert implements Alerter.
func (f AlertFunc) Alert(message string, icon IconType) { f(message, icon) }

// LogAlerter is the fallback Alerter: it writes alerts to the log.
type LogAlerter struct {
	Logger zerolog.Logger
}

// Alert implements Alerter.
func (a LogAlerter) Alert(message string, icon IconType) {
	a.Logger.Warn().Str("icon", string(icon)).Msg(message)
}

// Indicator is the global busy indicator.
type Indicator interface {
	ShowIndicator()
	HideIndicator()
}

// NopIndicator does nothing.
type NopIndicator struct{}

func (NopIndicator) ShowIndicator() {}
func (NopIndicator) HideIndicator() {}

// DefaultPayloadFunc returns the process-wide payload merged into every
// outgoing request. It may return nil.
type DefaultPayloadFunc func(req *Request) *Payload

// StaticPayload returns a DefaultPayloadFunc that always yields p.
func StaticPayload(p *Payload) DefaultPayloadFunc {
	return func(*Request) *Payload { return p }
}
