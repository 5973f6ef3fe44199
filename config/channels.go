package config

import (
	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ChannelSetting is one row of the channel table.
type ChannelSetting struct {
	Name    string `yaml:"name"`
	ID      int    `yaml:"id"`
	ROI     int    `yaml:"roi"`
	Enabled bool   `yaml:"enabled"`
}

// ChannelTable lists the advertised channels in stream order.
//
// It decodes either from a list of settings or from a mapping keyed by channel
// name. Mapping order is kept, so it must follow the stream.
type ChannelTable []ChannelSetting

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ChannelTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []ChannelSetting
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list

	case yaml.MappingNode:
		table := make(ChannelTable, 0, len(node.Content)/2)

		for i := 0; i+1 < len(node.Content); i += 2 {
			var ch ChannelSetting
			if err := node.Content[i+1].Decode(&ch); err != nil {
				return errors.Wrapf(err, "channel %q", node.Content[i].Value)
			}

			if ch.Name == "" {
				ch.Name = node.Content[i].Value
			}

			table = append(table, ch)
		}

		*t = table

	default:
		return errors.Errorf("line %d: channels must be a list or a mapping", node.Line)
	}

	return nil
}

// Channels converts the table to the model form.
func (t ChannelTable) Channels() []model.Channel {
	out := make([]model.Channel, len(t))
	for i, ch := range t {
		out[i] = model.Channel{
			Name:    ch.Name,
			ID:      ch.ID,
			ROI:     ch.ROI,
			Enabled: ch.Enabled,
		}
	}
	return out
}
