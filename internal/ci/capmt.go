package ci

import "github.com/tsforge/astragate/internal/ts"

// CAPMT tracks one subscribed program's CA-PMT lifecycle, per §3.8:
// created on first detection of a subscribed PMT, updated on every PMT
// CRC change, removed on deselection.
type CAPMT struct {
	PNR     uint16
	CRC     uint32
	PMT     *ts.PMT
	Version byte
}

// NewCAPMT captures the current PMT state for pnr.
func NewCAPMT(pnr uint16, pmt *ts.PMT, crc uint32) *CAPMT {
	return &CAPMT{PNR: pnr, CRC: crc, PMT: pmt, Version: pmt.Version}
}

// Update replaces the tracked PMT/CRC after a "pmt_changed" event (§3.8,
// S3). Returns true if the CRC actually changed.
func (c *CAPMT) Update(pmt *ts.PMT, crc uint32) bool {
	if crc == c.CRC {
		return false
	}
	c.CRC = crc
	c.PMT = pmt
	c.Version = pmt.Version
	return true
}

// build renders the CA_PMT APDU payload for this program against the
// CAM's advertised CAID list, mirroring ca_pmt_build. Returns ok=false
// if no CA descriptor in the program matched any advertised CAID (the
// CAM has nothing to do for this program), mirroring ca_pmt_send's
// is_caid gate — callers must not send an APDU in that case.
func (c *CAPMT) build(ca *ConditionalAccessData, listManage, cmd byte) ([]byte, bool) {
	buf := make([]byte, 4, 256)
	buf[0] = listManage
	buf[1] = byte(c.PNR >> 8)
	buf[2] = byte(c.PNR)
	buf[3] = 0xC1 | (c.Version << 1)

	isCAID := false

	progDesc, progOK := copyCADescriptors(nil, c.PMT.Desc, ca)
	if progOK && len(progDesc) > 2 {
		progDesc[2] = cmd
		isCAID = true
	}
	buf = append(buf, progDesc...)

	for _, item := range c.PMT.Items {
		buf = append(buf, item.Type, 0xE0|byte(item.PID>>8)&0x1F, byte(item.PID))
		esDesc, esOK := copyCADescriptors(nil, item.Desc, ca)
		if esOK && len(esDesc) > 2 {
			esDesc[2] = cmd
			isCAID = true
		}
		buf = append(buf, esDesc...)
	}
	return buf, isCAID
}

// copyCADescriptors renders one info_length-prefixed descriptor block
// containing only the CA descriptors whose CAID the CAM advertised,
// mirroring ca_pmt_copy_desc. The byte at offset 2 (the would-be
// ca_pmt_cmd_id) is left zero for the caller to fill in when any
// descriptor was copied.
func copyCADescriptors(dst []byte, desc *ts.DescriptorList, ca *ConditionalAccessData) ([]byte, bool) {
	if dst == nil {
		dst = make([]byte, 0, 16)
	}
	dst = append(dst, 0, 0, 0) // placeholder: info_length(2) + cmd(1)
	start := len(dst)

	if desc != nil {
		for _, d := range desc.Items() {
			cad, ok := d.CA()
			if !ok || !ca.hasCAID(cad.CAID) {
				continue
			}
			dst = append(dst, []byte(d)...)
		}
	}

	n := len(dst) - start
	if n > 0 {
		infoLength := n + 1 // + cmd byte
		dst[len(dst)-n-3] = 0xF0 | byte(infoLength>>8)&0x0F
		dst[len(dst)-n-2] = byte(infoLength)
		return dst, true
	}
	dst = dst[:len(dst)-1] // drop the unused cmd placeholder byte
	return dst, false
}
