// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/streetpass/pkg/plugin"
	"firestige.xyz/streetpass/plugins/reporter/console"
	"firestige.xyz/streetpass/plugins/reporter/kafka"
	"firestige.xyz/streetpass/plugins/reporter/pcap"
)

func init() {
	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("kafka", kafka.NewKafkaReporter)
	plugin.RegisterReporter("pcap", pcap.NewPcapReporter)
}
