package mqtt

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/cubehook/internal/device"
)

// TopicPrefix is the base of every robot topic.
const TopicPrefix = "cubehook"

// Topics builds the MQTT topics for one robot.
//
//	cubehook/{robot}/command             commands to the robot bridge
//	cubehook/{robot}/ack                 command completions
//	cubehook/{robot}/state               retained {"busy":bool,"online":bool}
//	cubehook/{robot}/accessory/{channel} retained {"connected":bool}
type Topics struct {
	RobotID string
}

// Command returns the topic commands are published on.
func (t Topics) Command() string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, t.RobotID)
}

// Ack returns the topic the bridge reports completions on.
func (t Topics) Ack() string {
	return fmt.Sprintf("%s/%s/ack", TopicPrefix, t.RobotID)
}

// State returns the retained robot state topic.
func (t Topics) State() string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, t.RobotID)
}

// Accessory returns the retained presence topic of a channel.
func (t Topics) Accessory(id device.ChannelID) string {
	return fmt.Sprintf("%s/%s/accessory/%s", TopicPrefix, t.RobotID, id)
}

// AccessoryWildcard matches the presence topics of all channels.
func (t Topics) AccessoryWildcard() string {
	return fmt.Sprintf("%s/%s/accessory/+", TopicPrefix, t.RobotID)
}

// channelFromTopic extracts the channel ID from an accessory topic.
func channelFromTopic(topic string) (device.ChannelID, bool) {
	idx := strings.LastIndex(topic, "/accessory/")
	if idx < 0 {
		return "", false
	}
	id := topic[idx+len("/accessory/"):]
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return device.ChannelID(id), true
}
