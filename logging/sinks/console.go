package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"raise-and-raze/editor/logging"
)

type ConsoleSink struct {
	logger   *log.Logger
	useColor bool
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags), useColor: cfg.UseColor}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] severity=%s", event.Type, s.severityToken(event.Severity))
	if event.Gesture != "" {
		fmt.Fprintf(&b, " gesture=%s", event.Gesture)
	}
	if event.Intent != "" {
		fmt.Fprintf(&b, " intent=%s", event.Intent)
	}
	if len(event.Targets) > 0 {
		fmt.Fprintf(&b, " targets=%s", strings.Join(event.Targets, ","))
	}
	b.WriteString(formatPayload(event.Payload))
	s.logger.Print(b.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func (s *ConsoleSink) severityToken(sev logging.Severity) string {
	if !s.useColor {
		return sev.String()
	}
	switch sev {
	case logging.SeverityWarn:
		return "\x1b[33m" + sev.String() + "\x1b[0m"
	case logging.SeverityError:
		return "\x1b[31m" + sev.String() + "\x1b[0m"
	default:
		return sev.String()
	}
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
