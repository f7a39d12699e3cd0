// Command astragate is the process entry point: it reads configuration,
// wires every subsystem package together, and runs until SIGINT/SIGTERM,
// mirroring the teacher's cmd/plex-tuner/main.go shape (flag-free direct
// construction in main, a goroutine-wrapped HTTP listener, an optional
// FUSE mount with a deferred unmount, and a blocking signal channel for
// graceful shutdown).
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsforge/astragate/internal/astlog"
	"github.com/tsforge/astragate/internal/camclient"
	"github.com/tsforge/astragate/internal/capture"
	"github.com/tsforge/astragate/internal/ci"
	"github.com/tsforge/astragate/internal/config"
	"github.com/tsforge/astragate/internal/diagfs"
	"github.com/tsforge/astragate/internal/dvbio"
	"github.com/tsforge/astragate/internal/health"
	"github.com/tsforge/astragate/internal/metrics"
	"github.com/tsforge/astragate/internal/pipeline"
	"github.com/tsforge/astragate/internal/runtime"
	"github.com/tsforge/astragate/internal/source"
	"github.com/tsforge/astragate/internal/store"
	"github.com/tsforge/astragate/internal/ts"
)

func main() {
	cfg := config.Load()
	rootLog := astlog.New("astragate", "")

	reg := metrics.NewRegistry()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		rootLog.Fatal("configuration", err)
	}
	defer st.Close()

	capMgr := capture.NewManager(cfg.CacheDir, cfg.CaptureRingPackets)

	reactor, err := runtime.NewReactor()
	if err != nil {
		rootLog.Fatal("invariant", err)
	}
	go func() {
		if err := reactor.Run(); err != nil {
			rootLog.Recoverable("reactor", err)
		}
	}()
	defer reactor.Stop()

	var outConn net.Conn
	if cfg.OutputUDPAddr != "" {
		outConn, err = net.Dial("udp", cfg.OutputUDPAddr)
		if err != nil {
			rootLog.Recoverable("io", err)
		} else {
			defer outConn.Close()
		}
	}

	var cam *camclient.Client
	if cfg.CamAddr != "" {
		cam, err = camclient.Dial(camclient.Config{
			Addr:   cfg.CamAddr,
			User:   cfg.CamUser,
			Pass:   cfg.CamPass,
			DESKey: cfg.CamDESKey,
		})
		if err != nil {
			rootLog.Recoverable("key_server_down", err)
		} else {
			defer cam.Close()
		}
	}

	var ciDev *ci.Device
	var caDevices []*dvbio.CADevice
	if cfg.CIEnabled {
		for _, ac := range cfg.Adapters {
			caDev := dvbio.NewCADevice(ac.Index, ac.Device)
			if err := caDev.Open(); err != nil {
				rootLog.Recoverable("device_lost", err)
				continue
			}
			caDevices = append(caDevices, caDev)
		}
		if len(caDevices) > 0 {
			ciDev = ci.NewDevice(cfg.CISlots, caDevices[0], func(err error) {
				rootLog.Recoverable("cam_reset", err)
			})
			reactor.AddPeriodic(100*time.Millisecond, func() {
				now := time.Now()
				_ = ciDev.PollModuleReady(caDevices[0], now)
				ciDev.Tick(now)

				var buf [256]byte
				for {
					n, err := caDevices[0].Read(buf[:])
					if err != nil || n == 0 {
						break
					}
					if err := ci.Feed(ciDev.Slots, buf[:n]); err != nil {
						rootLog.Malformed("tpdu", err)
					}
				}
			})
		}
	}

	var programs []*program
	var adapters []*dvbio.Adapter

	switch cfg.SourceMode {
	case "udp":
		programs = []*program{runUDPSource(cfg, rootLog, reg, capMgr, cam, ciDev, outConn)}
	case "replay":
		programs = []*program{runReplaySource(cfg, rootLog, reg, capMgr, cam, ciDev, outConn)}
	default:
		adapters, programs = startDVBAdapters(cfg, rootLog, reg, capMgr, cam, ciDev, outConn)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/healthz", health.Handler(func() []health.Check {
		checks := make([]health.Check, 0, len(cfg.Adapters)+1)
		for _, ac := range cfg.Adapters {
			checks = append(checks, health.Check{
				Name: adapterCheckName(ac.Index),
				Err:  health.CheckAdapterDevice(ac.Index, ac.Device),
			})
		}
		if cam != nil {
			checks = append(checks, health.Check{Name: "cam", Err: health.CheckCAM(cam)})
		}
		return checks
	}))
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			rootLog.Fatal("configuration", err)
		}
	}()

	var unmountDiag func()
	if cfg.DiagFSMount != "" {
		src := &diagSource{adapters: adapters, programs: programs, ciDev: ciDev}
		unmount, err := diagfs.MountBackground(context.Background(), cfg.DiagFSMount, src, false)
		if err != nil {
			rootLog.Recoverable("io", err)
		} else {
			unmountDiag = unmount
			defer unmountDiag()
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	rootLog.Printf("shutting down")

	for _, a := range adapters {
		_ = a.Stop()
	}
	for _, c := range caDevices {
		_ = c.Close()
	}
}

func adapterCheckName(index int) string {
	return "adapter" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// startDVBAdapters tunes one dvbio.Adapter per configured adapter, binds
// a single-program pipeline for each, and starts its pump goroutine.
func startDVBAdapters(cfg *config.Config, rootLog *astlog.Logger, reg *metrics.Registry, capMgr *capture.Manager, cam *camclient.Client, ciDev *ci.Device, out net.Conn) ([]*dvbio.Adapter, []*program) {
	adapters := make([]*dvbio.Adapter, 0, len(cfg.Adapters))
	programs := make([]*program, 0, len(cfg.Adapters))

	for _, ac := range cfg.Adapters {
		params := toTuneParams(ac)
		a := dvbio.NewAdapter(ac.Index, ac.Device, params, false)
		if err := a.Start(); err != nil {
			rootLog.Recoverable("device_lost", err)
			continue
		}
		adapters = append(adapters, a)

		alog := astlog.New("adapter", itoa(ac.Index))
		prog := newProgram("adapter"+itoa(ac.Index), ac.ProgramNumber, alog, cam, ciDev, cfg.PCRReinsertInterval)
		programs = append(programs, prog)
		wireProgram(a.Node, prog, reg, capMgr, out)

		go pumpAdapter(a, cfg.DeviceLostTimeout, alog)
	}
	return adapters, programs
}

func pumpAdapter(a *dvbio.Adapter, timeout time.Duration, log *astlog.Logger) {
	for {
		if err := a.RunOnce(timeout); err != nil {
			log.Recoverable("device_lost", err)
			time.Sleep(time.Second)
		}
	}
}

func toTuneParams(ac config.AdapterConfig) dvbio.TuneParams {
	p := dvbio.TuneParams{
		Frequency:       ac.Frequency,
		SymbolRate:      ac.SymbolRate,
		DiseqcPort:      ac.DiseqcPort,
		RetuneCountdown: 5,
	}
	switch ac.System {
	case "dvbs":
		p.System = dvbio.SystemDVBS
	case "dvbt":
		p.System = dvbio.SystemDVBT
	case "dvbt2":
		p.System = dvbio.SystemDVBT2
	case "dvbc":
		p.System = dvbio.SystemDVBC
	default:
		p.System = dvbio.SystemDVBS2
	}
	switch ac.Polarity {
	case "v", "r":
		p.Polarity = dvbio.PolarityVertical
	default:
		p.Polarity = dvbio.PolarityHorizontal
	}
	return p
}

// wireProgram attaches a program's PAT-scanning sink to the adapter's
// root node and wires its Channel's upstream join/leave and Emit back
// into the same node, completing the loop: the adapter opens a demux
// filter for whatever PID the program currently needs, and the
// program's remuxed output is observed by metrics/capture and forwarded
// to out.
func wireProgram(root *pipeline.Node, p *program, reg *metrics.Registry, capMgr *capture.Manager, out net.Conn) {
	b := pipeline.NewBuilder(root)
	sink, err := b.WithSink(root, pipeline.SinkConfig{
		Name: p.channel.Name,
		PIDs: []uint16{ts.PIDPAT},
		Sink: func(n *pipeline.Node, pkt ts.Packet) {
			reg.ObservePacket(pkt.PID())
			capMgr.Observe(pkt.PID(), pkt)
			p.Dispatch(pkt)
		},
	})
	if err != nil {
		return
	}

	p.joinECM = func(pid uint16) { sink.JoinPID(pid) }
	p.channel.JoinUpstream = func(pid uint16) { sink.JoinPID(pid) }
	p.channel.LeaveUpstream = func(pid uint16) { sink.LeavePID(pid) }
	p.channel.Emit = func(pkt ts.Packet) {
		if out != nil {
			_, _ = out.Write(pkt)
		}
	}
}

// nonDVBRoot stands in for a dvbio.Adapter's Node when the packet
// source is UDP or file replay: there's no hardware demux to bounce, so
// OnJoin/OnLeave have nothing to do — every PID in the incoming stream
// is already present.
func nonDVBRoot() *pipeline.Node {
	return pipeline.New("source", nil)
}

func runUDPSource(cfg *config.Config, rootLog *astlog.Logger, reg *metrics.Registry, capMgr *capture.Manager, cam *camclient.Client, ciDev *ci.Device, out net.Conn) *program {
	root := nonDVBRoot()
	prog := newProgram("udp", cfg.Adapters[0].ProgramNumber, astlog.New("source", "udp"), cam, ciDev, cfg.PCRReinsertInterval)
	wireProgram(root, prog, reg, capMgr, out)

	src := source.NewUDPSource(cfg.UDPAddr, cfg.UDPIface)
	src.OnPacket = func(pkt ts.Packet) { pipeline.Send(root, pkt) }
	if err := src.Open(); err != nil {
		rootLog.Fatal("configuration", err)
	}
	go func() {
		for {
			if err := src.Pump(cfg.DeviceLostTimeout); err != nil {
				rootLog.Recoverable("device_lost", err)
				time.Sleep(time.Second)
			}
		}
	}()
	return prog
}

func runReplaySource(cfg *config.Config, rootLog *astlog.Logger, reg *metrics.Registry, capMgr *capture.Manager, cam *camclient.Client, ciDev *ci.Device, out net.Conn) *program {
	root := nonDVBRoot()
	prog := newProgram("replay", cfg.Adapters[0].ProgramNumber, astlog.New("source", "replay"), cam, ciDev, cfg.PCRReinsertInterval)
	wireProgram(root, prog, reg, capMgr, out)

	f, err := os.Open(cfg.ReplayFile)
	if err != nil {
		rootLog.Fatal("configuration", err)
	}
	rs := source.NewReplaySource(f)
	rs.OnPacket = func(pkt ts.Packet) { pipeline.Send(root, pkt) }
	go func() {
		if err := rs.Run(context.Background()); err != nil {
			rootLog.Recoverable("io", err)
		}
	}()
	return prog
}

func init() {
	log.SetFlags(0)
}
