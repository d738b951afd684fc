package hal

import (
	"fmt"

	"github.com/jaypipes/ghw"
)

// StaticProbe reports a fixed topology. Used by tests and by simulated
// machines whose shape is chosen on the command line.
type StaticProbe struct {
	Sockets int
	Cores   int // per socket
	Threads int // per core
}

func (p StaticProbe) Discover() (TopologyReport, error) {
	return TopologyReport{
		SocketCount:    p.Sockets,
		CoresPerSocket: p.Cores,
		ThreadsPerCore: p.Threads,
	}, nil
}

// HostProbe reads the real machine topology via ghw.
type HostProbe struct{}

func (HostProbe) Discover() (TopologyReport, error) {
	info, err := ghw.CPU()
	if err != nil {
		return TopologyReport{}, fmt.Errorf("hal: cpu probe: %w", err)
	}
	sockets := len(info.Processors)
	if sockets == 0 || info.TotalCores == 0 {
		return TopologyReport{}, fmt.Errorf("hal: cpu probe reported no processors")
	}
	cores := int(info.TotalCores) / sockets
	threads := int(info.TotalThreads) / int(info.TotalCores)
	if cores == 0 {
		cores = 1
	}
	if threads == 0 {
		threads = 1
	}
	return TopologyReport{
		SocketCount:    sockets,
		CoresPerSocket: cores,
		ThreadsPerCore: threads,
	}, nil
}
