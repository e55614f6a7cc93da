package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PrinterFunc returns a watermill handler that renders a generation's event
// stream to w. Deltas are written as they arrive so the output reads like the
// answer being typed.
func PrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventPartialCompletion:
			if isFirst && name != "" {
				isFirst = false
				_, err = fmt.Fprintf(w, "\n%s: \n", name)
				if err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
			if err != nil {
				return err
			}

		case *EventFinal:
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
				if err != nil {
					return err
				}
			}
			isFirst = true

		case *EventError:
			_, err = fmt.Fprintf(w, "\nerror: %s\n", p_.ErrorString)
			if err != nil {
				return err
			}
			isFirst = true

		case *EventInterrupt:
			_, err = fmt.Fprintf(w, "\n[interrupted]\n")
			if err != nil {
				return err
			}
			isFirst = true

		case *EventPartialCompletionStart:
		}

		return nil
	}
}
