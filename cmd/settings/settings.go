package settings

import (
	"fmt"

	"github.com/bsv-blockchain/peerlogic/settings"
	jsoniter "github.com/json-iterator/go"
	"github.com/ordishs/gocore"
)

// CmdSettings prints the gocore configuration stats followed by the settings the message layer would run
// with.
func CmdSettings(version string, commit string) error {
	stats := gocore.Config().Stats()
	fmt.Printf("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	tSettings := settings.NewSettings()

	if err := tSettings.Validate(); err != nil {
		return err
	}

	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	out, err := json.MarshalIndent(struct {
		ClientName    string
		Network       string
		Policy        *settings.PolicySettings
		NetProcessing settings.NetProcessingSettings
		Kafka         settings.KafkaSettings
		Tracing       settings.TracingSettings
	}{
		ClientName:    tSettings.ClientName,
		Network:       tSettings.Network,
		Policy:        tSettings.Policy,
		NetProcessing: tSettings.NetProcessing,
		Kafka:         tSettings.Kafka,
		Tracing:       tSettings.Tracing,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Printf("SETTINGS\n--------\n%s\n", out)

	return nil
}
