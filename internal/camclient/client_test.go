package camclient

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// fakeServer is a minimal newcamd server used to drive Client against a
// real TCP connection without a genuine CAS back end.
type fakeServer struct {
	ln          net.Listener
	providerKey [14]byte
	ecmReply    []byte
}

func newFakeServer(t *testing.T, providerKey [14]byte) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeServer{ln: ln, providerKey: providerKey}
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serveOne(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	rnd := make([]byte, 14)
	for i := range rnd {
		rnd[i] = byte(i + 1)
	}
	if _, err := conn.Write(rnd); err != nil {
		t.Errorf("server: write seed: %v", err)
		return
	}
	sess := newSession(expandDESKey(s.providerKey, rnd))

	// login request
	fb, err := serverRecv(r, sess)
	if err != nil {
		t.Errorf("server: recv login: %v", err)
		return
	}
	if fb.cmd != cmdClientLogin {
		t.Errorf("server: expected login cmd, got 0x%02X", fb.cmd)
		return
	}
	nul := indexByte(string(fb.payload), 0)
	passHash := string(fb.payload[nul+1 : len(fb.payload)-1])
	if err := serverSend(conn, sess, 0, 0, buildMessage(cmdClientLoginAck, nil)); err != nil {
		t.Errorf("server: send login ack: %v", err)
		return
	}

	sess = newSession(expandDESKey(s.providerKey, []byte(passHash)))

	// card data request
	fb, err = serverRecv(r, sess)
	if err != nil {
		t.Errorf("server: recv card req: %v", err)
		return
	}
	if fb.cmd != cmdCardDataReq {
		t.Errorf("server: expected card data req, got 0x%02X", fb.cmd)
		return
	}
	card := []byte{0x05, 0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, 0}
	if err := serverSend(conn, sess, 0, 0, buildMessage(cmdCardData, card)); err != nil {
		t.Errorf("server: send card data: %v", err)
		return
	}

	// one ECM request
	fb, err = serverRecv(r, sess)
	if err != nil {
		t.Errorf("server: recv ecm: %v", err)
		return
	}
	reply := s.ecmReply
	if reply == nil {
		reply = make([]byte, 16)
	}
	if err := serverSend(conn, sess, fb.msgID, fb.pnr, buildMessage(fb.cmd, reply)); err != nil {
		t.Errorf("server: send ecm reply: %v", err)
	}
}

func serverRecv(r *bufio.Reader, sess *session) (frameBody, error) {
	var prefix [2]byte
	if _, err := readFull(r, prefix[:]); err != nil {
		return frameBody{}, err
	}
	n := binary.BigEndian.Uint16(prefix[:])
	enc := make([]byte, n)
	if _, err := readFull(r, enc); err != nil {
		return frameBody{}, err
	}
	dec, err := sess.decryptCBC(enc)
	if err != nil {
		return frameBody{}, err
	}
	return parseBody(dec[:len(dec)-1])
}

func serverSend(conn net.Conn, sess *session, msgID, pnr uint16, msg []byte) error {
	body := buildBody(msgID, pnr, msg)
	body = append(body, make([]byte, padLen(len(body)))...)
	body = append(body, xorSum(body))
	enc, err := sess.encryptCBC(body)
	if err != nil {
		return err
	}
	prefix := make([]byte, 2)
	binary.BigEndian.PutUint16(prefix, uint16(len(enc)))
	_, err = conn.Write(append(prefix, enc...))
	return err
}

func TestClientLoginAndRequestECM(t *testing.T) {
	var providerKey [14]byte
	for i := range providerKey {
		providerKey[i] = byte(0x10 + i)
	}
	hexKey := ""
	for _, b := range providerKey {
		hexKey += string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xF])
	}

	srv := newFakeServer(t, providerKey)
	defer srv.ln.Close()
	done := make(chan struct{})
	go func() {
		srv.serveOne(t)
		close(done)
	}()

	cfg := Config{Addr: srv.addr(), User: "user1", Pass: "pass1", DESKey: hexKey}
	c, err := Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	card := c.Card()
	if card.CAID != 0x0500 {
		t.Fatalf("CAID = 0x%04X, want 0x0500", card.CAID)
	}

	section := []byte{0x80, 0xF0, 0x00, 0x01, 0x02, 0x03}
	reply, err := c.RequestECM(0x0010, section)
	if err != nil {
		t.Fatalf("RequestECM: %v", err)
	}
	if len(reply) != 16 {
		t.Fatalf("reply length = %d, want 16", len(reply))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fake server did not finish")
	}
}
