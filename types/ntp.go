package types

import "fmt"

// NTP identifies a single log: namespace, topic, partition.
type NTP struct {
	Namespace string
	Topic     string
	Partition uint32
}

// String renders the NTP the way it appears on disk:
// <namespace>/<topic>/<partition>.
func (n NTP) String() string {
	return fmt.Sprintf("%s/%s/%d", n.Namespace, n.Topic, n.Partition)
}
