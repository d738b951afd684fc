// Command smpdemo boots the coordination core on a simulated host machine:
// it wakes every secondary core, runs TLB shootdown and cross-core call
// rounds, and prints the final statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
	"k8s.io/utils/cpuset"

	"coresmp/hal"
	"coresmp/internal/buildinfo"
	"coresmp/smp"
)

func main() {
	var (
		coreList   = flag.String("cores", "0-3", "Cores to simulate (cpuset list syntax, e.g. \"0-3,6\").")
		hostTopo   = flag.Bool("host-topology", false, "Probe the real machine topology instead of -cores.")
		shootdowns = flag.Int("shootdowns", 1, "TLB shootdown rounds to run.")
		pin        = flag.Bool("pin", false, "Pin each simulated core to the matching host CPU.")
		asJSON     = flag.Bool("json", false, "Print the final statistics as JSON.")
		quiet      = flag.Bool("quiet", false, "Suppress state transition and IPI logging.")
		version    = flag.Bool("version", false, "Print version and exit.")
	)
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.Short())
		return
	}
	if err := run(*coreList, *hostTopo, *shootdowns, *pin, *asJSON, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(coreList string, hostTopo bool, shootdowns int, pin, asJSON, quiet bool) error {
	var log hal.Logger = hal.NopLogger{}
	if !quiet {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer zl.Sync()
		log = hal.NewZapLogger(zl)
	}

	var probe hal.ArchProbe
	if hostTopo {
		probe = hal.HostProbe{}
	} else {
		set, err := cpuset.Parse(coreList)
		if err != nil {
			return fmt.Errorf("bad -cores list: %w", err)
		}
		if set.Size() == 0 {
			return fmt.Errorf("bad -cores list: no cores")
		}
		probe = hal.StaticProbe{Sockets: 1, Cores: set.Size(), Threads: 1}
	}

	sys, err := smp.New(smp.Config{Probe: probe, Memory: hal.NopMemory{}, Logger: log})
	if err != nil {
		return err
	}
	total := sys.Topology().TotalCores

	machine := hal.NewMachine(total, hal.MachineConfig{Pin: pin, Logger: log})
	if err := sys.BindController(machine); err != nil {
		return err
	}
	machine.Start(sys.ProcessInbox)
	defer machine.Stop()

	for core := 1; core < total; core++ {
		if err := sys.Wake(core); err != nil {
			return fmt.Errorf("wake core %d: %w", core, err)
		}
	}
	if err := sys.WaitAllOnline(2 * time.Second); err != nil {
		return fmt.Errorf("cores did not come online: %w", err)
	}

	for i := 0; i < shootdowns; i++ {
		if err := sys.TlbShootdownAll(); err != nil {
			return err
		}
	}

	var calls atomic.Uint64
	if err := sys.CallOnAll(func() { calls.Add(1) }); err != nil {
		return err
	}
	if err := sys.Rendezvous(2 * time.Second); err != nil {
		return fmt.Errorf("rendezvous: %w", err)
	}

	snap := sys.Stats()
	online := onlineSet(sys)
	if asJSON {
		b, err := sonnet.Marshal(snap)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Printf("online cores:     %s (%d of %d)\n", online, snap.OnlineCores, snap.TotalCores)
	fmt.Printf("ipi sent:         %d\n", snap.IpiSent)
	fmt.Printf("ipi received:     %d\n", snap.IpiReceived)
	fmt.Printf("tlb shootdowns:   %d\n", snap.TlbShootdowns)
	fmt.Printf("cross-core calls: %d\n", calls.Load())
	return nil
}

func onlineSet(sys *smp.System) cpuset.CPUSet {
	var ids []int
	for core := 0; core < sys.Topology().TotalCores; core++ {
		if sys.IsOnline(core) {
			ids = append(ids, core)
		}
	}
	return cpuset.New(ids...)
}
