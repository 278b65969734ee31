package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/dispatch"
	"github.com/evanphx/yukon/registry"
	"github.com/evanphx/yukon/services"
)

var (
	fProcs = pflag.IntP("procs", "p", 4, "number of logical processors to dispatch from")
	fCalls = pflag.IntP("calls", "n", 100000, "syscalls to issue per processor")
	fDump  = pflag.BoolP("dump", "d", false, "dump the registry range table after the run")
)

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	reg := registry.New()

	for _, setup := range []func(*registry.Registry) (registry.ServiceId, error){
		services.RegisterProcess,
		services.RegisterClock,
		services.RegisterMemory,
	} {
		if _, err := setup(reg); err != nil {
			log.Fatal(err)
		}
	}

	d, err := dispatch.New(reg, dispatch.Config{Processors: *fProcs})
	if err != nil {
		log.Fatal(err)
	}

	// skewed synthetic workload: getpid dominates, the rest trail off
	workload := []uint32{
		abi.SysGetpid, abi.SysGetpid, abi.SysGetpid, abi.SysGetpid,
		abi.SysYield, abi.SysYield,
		abi.SysClockGetTime,
		abi.SysMmap,
		0xBEEF, // unbound, exercises the miss path
	}

	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < *fProcs; i++ {
		wg.Add(1)

		go func(cpu int) {
			defer wg.Done()

			p := d.Processor(cpu)
			rng := rand.New(rand.NewSource(int64(cpu)))

			for n := 0; n < *fCalls; n++ {
				num := workload[rng.Intn(len(workload))]

				var args abi.Args
				if num == abi.SysMmap {
					args[1] = 4096
				}

				p.DispatchABI(ctx, num, args)
			}
		}(i)
	}

	wg.Wait()

	d.RebuildFastPath()

	stats := d.Stats()

	fmt.Printf("epoch %d, fast-path occupancy %d\n", stats.Epoch, stats.FastPathOccupancy)

	for i, ps := range stats.Processors {
		fmt.Printf("cpu%d: %d hits, %d misses\n", i, ps.Hits, ps.Misses)
	}

	for num, st := range stats.Syscalls {
		fmt.Printf("%-16s %8d calls %12s\n", abi.Name(num), st.Calls, st.Time)
	}

	if *fDump {
		spew.Dump(stats.Ranges)
	}

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}
}
