package output

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
)

// ConsoleOutput writes a human-readable representation of every
// event to standard output. It never fails in normal operation.
type ConsoleOutput struct {
	id      string
	started bool
}

func NewConsoleOutput(id string) *ConsoleOutput {
	if id == "" {
		id = "console"
	}
	return &ConsoleOutput{id: id}
}

func (o *ConsoleOutput) ID() string { return o.id }

func (o *ConsoleOutput) Start() error {
	o.started = true
	return nil
}

func (o *ConsoleOutput) Stop() error {
	o.started = false
	return nil
}

func (o *ConsoleOutput) Send(e event.Event) error {
	meta := e.Meta()

	switch v := e.(type) {
	case event.TextProductEvent:
		payload, err := json.MarshalIndent(v.Product, "", "  ")
		if err != nil {
			return nil
		}
		pterm.DefaultSection.Printf("%s  %s", v.AwipsID, v.ProductID)
		bullets := []pterm.BulletListItem{
			{Level: 0, Text: fmt.Sprintf("cccc: %s", v.CCCC)},
			{Level: 0, Text: fmt.Sprintf("event_id: %s", meta.EventID)},
		}
		_ = pterm.DefaultBulletList.WithItems(bullets).Render()
		fmt.Println(string(payload))
	case event.XmlEvent:
		pterm.Info.Printf("xml product %s/%s\n", v.CCCC, v.AwipsID)
		fmt.Println(v.Body)
	case event.RawIngestEvent:
		pterm.Info.Printf("raw ingest %s/%s (%s)\n", v.CCCC, v.AwipsID, v.ProductID)
	default:
		pterm.Warning.Printf("console output: unrecognized event kind %q\n", e.Kind())
	}

	return nil
}
