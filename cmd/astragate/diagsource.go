package main

import (
	"fmt"
	"strings"

	"github.com/tsforge/astragate/internal/ci"
	"github.com/tsforge/astragate/internal/dvbio"
)

// diagSource implements diagfs.Source by bridging the adapter, program,
// and CI device slices main assembled at startup — kept in cmd/astragate
// so internal/diagfs never has to import the packages it's reporting on.
type diagSource struct {
	adapters []*dvbio.Adapter
	programs []*program
	ciDev    *ci.Device
}

func (d *diagSource) PipelineNodes() []string {
	out := make([]string, 0, len(d.programs))
	for _, p := range d.programs {
		out = append(out, p.channel.Name)
	}
	return out
}

func (d *diagSource) PipelineDemand(node string) string {
	for _, p := range d.programs {
		if p.channel.Name != node {
			continue
		}
		var b strings.Builder
		for pid, mapped := range p.channel.PIDMap {
			fmt.Fprintf(&b, "%d->%d ", pid, mapped)
		}
		return b.String()
	}
	return ""
}

func (d *diagSource) Adapters() []int {
	out := make([]int, 0, len(d.adapters))
	for _, a := range d.adapters {
		out = append(out, a.Index)
	}
	return out
}

func (d *diagSource) AdapterStatus(adapter int) string {
	for _, a := range d.adapters {
		if a.Index != adapter {
			continue
		}
		state, fe, signal, snr, ber, unc := a.Status()
		return fmt.Sprintf("state=%s fe=%v signal=%d snr=%d ber=%d unc=%d", state, fe, signal, snr, ber, unc)
	}
	return ""
}

func (d *diagSource) CASlots() []int {
	if d.ciDev == nil {
		return nil
	}
	out := make([]int, len(d.ciDev.Slots))
	for i := range d.ciDev.Slots {
		out[i] = i
	}
	return out
}

func (d *diagSource) CASessions(slot int) string {
	if d.ciDev == nil || slot < 0 || slot >= len(d.ciDev.Slots) {
		return ""
	}
	s := d.ciDev.Slots[slot]
	sessions := s.OpenSessions()
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s sessions=%v", s.State, sessions)
	return b.String()
}
