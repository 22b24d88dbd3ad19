package flag

// CLI is the command line of gomshv.
type CLI struct {
	LogLevel string `name:"log-level" default:"info" enum:"trace,debug,info,warn,error" help:"log level"`
	Profile  string `name:"profile" default:"none" enum:"none,cpu,mem,block,mutex" help:"write a pprof profile to the working directory"`

	Probe ProbeCMD `cmd:"" help:"Print the irqfd and ioeventfd related capabilities of the kvm device"`
	Demo  DemoCMD  `cmd:"" help:"Bind irqfds and doorbells to a partition and drive them concurrently"`
}

type ProbeCMD struct {
	Dev string `short:"D" default:"/dev/kvm" help:"path of kvm device"`
}

type DemoCMD struct {
	Backend      string `short:"b" default:"sim" enum:"sim,kvm" help:"hypervisor backend"`
	Dev          string `short:"D" default:"/dev/kvm" help:"path of kvm device"`
	PartitionID  uint64 `name:"partition" default:"1" help:"partition id"`
	IRQFDs       int    `name:"irqfds" short:"i" default:"8" help:"number of irqfds"`
	Resample     int    `short:"r" default:"2" help:"number of irqfds with a resample channel"`
	Doorbells    int    `short:"d" default:"8" help:"number of mmio doorbells"`
	MMIOBase     string `name:"mmio-base" default:"0xd0000000" help:"guest physical base of the doorbells"`
	Signals      string `short:"n" default:"1k" help:"signals per irqfd: as number[gGmMkK]"`
	RouteUpdates int    `name:"route-updates" default:"100" help:"routing table rewrites during the run"`
	Workers      int    `short:"w" default:"4" help:"assert work queue workers"`
	MaxDoorbells int    `name:"max-doorbells" default:"0" help:"doorbell limit of the mmio bus, 0 for none"`
}
