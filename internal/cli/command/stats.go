package command

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/output"
	"github.com/yndnr/tcpctl-go/internal/telemetry/metric"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show connection counters for this process",
		Action: statsAction,
	}
}

type statsTable []metric.Sample

// Table implements output.Tabler.
func (s statsTable) Table(bool) *output.Table {
	t := &output.Table{}
	t.SetHeaders("METRIC", "LABELS", "VALUE")
	for _, sample := range s {
		t.AddRow(sample.Name, sample.Labels, strconv.FormatFloat(sample.Value, 'f', -1, 64))
	}
	return t
}

func statsAction(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}

	samples, err := GetConnectionManager(c).Metrics().Snapshot()
	if err != nil {
		return err
	}
	return flags.Formatter().Format(c.App.Writer, statsTable(samples))
}
